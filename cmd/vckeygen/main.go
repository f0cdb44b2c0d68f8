// Command vckeygen generates license keys for distribution. It is an
// offline admin tool: keys are signed with the same secret the engine
// verifies against, so run it only where the release secret is held.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"vcengine/internal/license"
	"vcengine/internal/security"
)

func main() {
	var (
		product     = flag.String("product", "VC01", "four character product code")
		mode        = flag.String("mode", "post", "binding mode: post or pre")
		count       = flag.Int("count", 1, "number of keys to generate")
		expiry      = flag.String("expiry", "", "expiry date YYYY-MM-DD (pre mode only)")
		fingerprint = flag.String("fingerprint", "", "target hardware fingerprint (pre mode; defaults to this machine)")
		secret      = flag.String("secret", os.Getenv("VC_LICENSE_SECRET"), "signing secret (defaults to VC_LICENSE_SECRET)")
	)
	flag.Parse()

	if *secret == "" {
		fatal("a signing secret is required: pass -secret or set VC_LICENSE_SECRET")
	}

	codec, err := license.NewCodec([]byte(*secret), strings.ToUpper(*product))
	if err != nil {
		fatal("invalid codec parameters: %v", err)
	}

	bindingMode := license.BindingMode(*mode)
	var expiresAt time.Time
	var boundTo string

	switch bindingMode {
	case license.PostBinding:
		if *expiry != "" || *fingerprint != "" {
			fatal("-expiry and -fingerprint only apply to pre mode")
		}
	case license.PreBinding:
		if *expiry == "" {
			fatal("pre mode requires -expiry YYYY-MM-DD")
		}
		expiresAt, err = time.Parse("2006-01-02", *expiry)
		if err != nil {
			fatal("invalid expiry date: %v", err)
		}
		boundTo = strings.ToUpper(*fingerprint)
		if boundTo == "" {
			boundTo = security.NewGenerator().Fingerprint()
			fmt.Fprintf(os.Stderr, "binding to this machine: %s\n", boundTo)
		}
	default:
		fatal("mode must be post or pre, got %q", *mode)
	}

	for i := 0; i < *count; i++ {
		key, err := codec.Generate(bindingMode, expiresAt, boundTo)
		if err != nil {
			fatal("generate key: %v", err)
		}
		fmt.Println(key)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
