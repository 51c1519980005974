package keys

import (
	"fmt"
	"io"

	"signalexecutor/src/security"
)

// Seal encrypts one credential with the configured key and writes the
// sealed blob, ready to paste into env config.
func Seal(plaintext string, out io.Writer) error {
	sealed, err := security.EncryptString(plaintext)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, sealed)
	return err
}
