package yellow

import "testing"

const (
	goldenNonce  = int64(1428758911002)
	goldenURL    = "https://api.yellowpay.co/v1/invoice/"
	goldenBody   = `{"base_ccy":"USD","base_price":"0.1","callback":"https://example.com/ipn","type":"cart","order":"1234567"}`
	goldenSecret = "SECRET"
)

func TestComputeSignature_Golden(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		body   string
		nonce  int64
		secret string
		want   string
	}{
		{
			name:   "create invoice",
			url:    goldenURL,
			body:   goldenBody,
			nonce:  goldenNonce,
			secret: goldenSecret,
			want:   "7a11dae7fbb51b598fd3735148fa152b9166e63f778000ec77c42ab3804c7135",
		},
		{
			name:   "create invoice other secret",
			url:    goldenURL,
			body:   goldenBody,
			nonce:  goldenNonce,
			secret: "APISECRET",
			want:   "608600d19f6c0478531890ae3700ad6fd54643f6f2135baaaa94a7ac1345e5e4",
		},
		{
			name:   "query invoice with empty body",
			url:    goldenURL + "LW6U5TALVCVJQVW9CSQGHV8VEH",
			body:   "",
			nonce:  goldenNonce,
			secret: "APISECRET",
			want:   "1172427a1731001a4c0737d30fee9184f647aac0c2918d7228a5d889252a5cf7",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeSignature(tc.url, tc.body, tc.nonce, tc.secret)
			if got != tc.want {
				t.Errorf("ComputeSignature() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestComputeSignature_Deterministic(t *testing.T) {
	first := ComputeSignature(goldenURL, goldenBody, goldenNonce, goldenSecret)
	for i := 0; i < 10; i++ {
		if got := ComputeSignature(goldenURL, goldenBody, goldenNonce, goldenSecret); got != first {
			t.Fatalf("call %d returned %s, want %s", i, got, first)
		}
	}
	if len(first) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(first))
	}
	for _, r := range first {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("signature %q is not lowercase hex", first)
		}
	}
}

func TestComputeSignature_SensitiveToEveryInput(t *testing.T) {
	base := ComputeSignature(goldenURL, goldenBody, goldenNonce, goldenSecret)

	variants := map[string]string{
		"nonce":  ComputeSignature(goldenURL, goldenBody, goldenNonce+1, goldenSecret),
		"url":    ComputeSignature(goldenURL+"x", goldenBody, goldenNonce, goldenSecret),
		"body":   ComputeSignature(goldenURL, goldenBody+" ", goldenNonce, goldenSecret),
		"secret": ComputeSignature(goldenURL, goldenBody, goldenNonce, goldenSecret+"2"),
	}
	for name, sig := range variants {
		if sig == base {
			t.Errorf("changing %s did not change the signature", name)
		}
	}
}

func TestSignMessage_MatchesComputeSignature(t *testing.T) {
	want := ComputeSignature(goldenURL, goldenBody, goldenNonce, goldenSecret)
	if got := SignMessage(goldenURL, goldenBody, "1428758911002", goldenSecret); got != want {
		t.Errorf("SignMessage() = %s, want %s", got, want)
	}
}

func TestVerifySignature(t *testing.T) {
	sig := ComputeSignature(goldenURL, goldenBody, goldenNonce, goldenSecret)

	tests := []struct {
		name      string
		secret    string
		url       string
		nonce     string
		signature string
		body      string
		want      bool
	}{
		{"valid", goldenSecret, goldenURL, "1428758911002", sig, goldenBody, true},
		{"wrong secret", "OTHER", goldenURL, "1428758911002", sig, goldenBody, false},
		{"wrong url", goldenSecret, "https://example.com/", "1428758911002", sig, goldenBody, false},
		{"wrong nonce", goldenSecret, goldenURL, "1428758911003", sig, goldenBody, false},
		{"tampered body", goldenSecret, goldenURL, "1428758911002", sig, `{"tampered":true}`, false},
		{"uppercase signature", goldenSecret, goldenURL, "1428758911002", toUpper(sig), goldenBody, false},
		{"empty signature", goldenSecret, goldenURL, "1428758911002", "", goldenBody, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := VerifySignature(tc.secret, tc.url, tc.nonce, tc.signature, tc.body)
			if got != tc.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVerifySignature_RoundTrip(t *testing.T) {
	inputs := []struct {
		url, body, secret string
		nonce             int64
	}{
		{"https://api.yellowpay.co/v1/invoice/", "", "s", 0},
		{"https://api.yellowpay.co/v1/invoice/abc", "", "secret", 1},
		{"https://merchant.example/ipn?x=1", `{"status":"paid"}`, "ünïcødé", 1700000000000},
		{"", "", "", 42},
	}
	for _, in := range inputs {
		sig := ComputeSignature(in.url, in.body, in.nonce, in.secret)
		nonce := formatNonce(in.nonce)
		if !VerifySignature(in.secret, in.url, nonce, sig, in.body) {
			t.Errorf("round trip failed for %+v", in)
		}
	}
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
