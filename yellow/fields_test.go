package yellow

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFields_MarshalKeepsInsertionOrder(t *testing.T) {
	f := NewInvoiceFields("USD", "0.1")
	f.Set(FieldCallback, "https://example.com/ipn")
	f.Set(FieldType, "cart")
	f.Set(FieldOrder, "1234567")

	got, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != goldenBody {
		t.Errorf("Marshal() = %s, want %s", got, goldenBody)
	}
}

func TestFields_SetExistingKeepsPosition(t *testing.T) {
	f := NewInvoiceFields("USD", "0.1")
	f.Set(FieldOrder, "1")
	f.Set(FieldBaseCcy, "EUR")

	want := []string{FieldBaseCcy, FieldBasePrice, FieldOrder}
	if got := f.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if v, _ := f.Get(FieldBaseCcy); v != "EUR" {
		t.Errorf("Get(base_ccy) = %v, want EUR", v)
	}
}

func TestFields_Delete(t *testing.T) {
	f := NewInvoiceFields("USD", "0.1")
	f.Set(FieldRedirect, "https://shop.example/done")
	f.Delete(FieldBasePrice)
	f.Delete("missing")

	if f.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", f.Len())
	}
	if _, ok := f.Get(FieldBasePrice); ok {
		t.Error("base_price still present after Delete")
	}
	got, _ := f.MarshalJSON()
	want := `{"base_ccy":"USD","redirect":"https://shop.example/done"}`
	if string(got) != want {
		t.Errorf("MarshalJSON() = %s, want %s", got, want)
	}
}

func TestFields_ZeroAndNil(t *testing.T) {
	var zero Fields
	got, err := zero.MarshalJSON()
	if err != nil || string(got) != "{}" {
		t.Errorf("zero MarshalJSON() = %s, %v; want {}", got, err)
	}

	var nilFields *Fields
	got, err = nilFields.MarshalJSON()
	if err != nil || string(got) != "{}" {
		t.Errorf("nil MarshalJSON() = %s, %v; want {}", got, err)
	}
	if nilFields.Len() != 0 || nilFields.Keys() != nil {
		t.Error("nil Fields should be empty")
	}
}

func TestFields_NonStringValues(t *testing.T) {
	f := &Fields{}
	f.Set("qty", 2).Set("meta", map[string]string{"a": "b"}).Set("none", nil)

	got, err := f.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	want := `{"qty":2,"meta":{"a":"b"},"none":null}`
	if string(got) != want {
		t.Errorf("MarshalJSON() = %s, want %s", got, want)
	}
}

func TestFields_UnmarshalKeepsOrder(t *testing.T) {
	in := `{"order":"42","base_price":1.50,"base_ccy":"USD"}`

	var f Fields
	if err := json.Unmarshal([]byte(in), &f); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want := []string{FieldOrder, FieldBasePrice, FieldBaseCcy}
	if got := f.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	price, _ := f.Get(FieldBasePrice)
	if n, ok := price.(json.Number); !ok || n.String() != "1.50" {
		t.Errorf("base_price = %#v, want json.Number 1.50", price)
	}

	out, _ := f.MarshalJSON()
	if string(out) != `{"order":"42","base_price":1.50,"base_ccy":"USD"}` {
		t.Errorf("re-encoded = %s", out)
	}
}

func TestFields_UnmarshalRejectsNonObject(t *testing.T) {
	var f Fields
	if err := json.Unmarshal([]byte(`["a"]`), &f); err == nil {
		t.Error("expected error for JSON array")
	}
}

func TestFields_Clone(t *testing.T) {
	f := NewInvoiceFields("USD", "0.1")
	c := f.Clone()
	c.Set(FieldBasePrice, "9")
	c.Set(FieldOrder, "x")

	if v, _ := f.Get(FieldBasePrice); v != "0.1" {
		t.Errorf("original modified: base_price = %v", v)
	}
	if f.Len() != 2 || c.Len() != 3 {
		t.Errorf("Len original=%d clone=%d", f.Len(), c.Len())
	}

	var nilFields *Fields
	if nilFields.Clone().Len() != 0 {
		t.Error("clone of nil should be empty")
	}
}
