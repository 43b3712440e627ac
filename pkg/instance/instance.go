// Package instance derives a stable identifier for this engine host.
// The tag prefixes client order ids so venue history stays attributable
// when more than one engine instance trades the same account.
package instance

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/denisbrodbeck/machineid"
)

// Tag returns a short, stable identifier for this machine. Falls back to
// the hostname when the machine id is unavailable (containers, some BSDs).
func Tag() string {
	id, err := machineid.ID()
	if err != nil {
		host, herr := os.Hostname()
		if herr != nil {
			return "eng"
		}
		id = host
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:8]
}
