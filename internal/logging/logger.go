package logging

import (
	"log"
	"os"
)

var (
	Yellow   = log.New(os.Stdout, "[yellow] ", log.LstdFlags)
	IPN      = log.New(os.Stdout, "[ipn] ", log.LstdFlags)
	Store    = log.New(os.Stdout, "[store] ", log.LstdFlags)
	Archive  = log.New(os.Stdout, "[archive] ", log.LstdFlags)
	HTTP     = log.New(os.Stdout, "[http] ", log.LstdFlags)
	Internal = log.New(os.Stdout, "[internal] ", log.LstdFlags)
)
