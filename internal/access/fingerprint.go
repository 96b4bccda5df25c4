package access

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"runtime"
	"time"
)

// Characteristics are the device traits a fingerprint is derived from.
// RenderSample is whatever rendering-based entropy the client could collect;
// headless or default configurations tend to report identical samples, so
// distinct devices may share a fingerprint.
type Characteristics struct {
	UserAgent        string `json:"userAgent"`
	Language         string `json:"language"`
	Platform         string `json:"platform"`
	ScreenResolution string `json:"screenResolution"`
	Timezone         string `json:"timezone"`
	RenderSample     string `json:"renderSample"`
}

// Fingerprint returns the hex SHA-256 of the characteristics' canonical JSON.
// It is an advisory device binding, not an authentication secret.
func Fingerprint(characteristics Characteristics) string {
	// A struct of strings always marshals.
	payload, _ := json.Marshal(characteristics)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// HostCharacteristics describes the local process, for command-line sessions.
func HostCharacteristics() Characteristics {
	hostname, _ := os.Hostname()
	language := os.Getenv("LC_ALL")
	if language == "" {
		language = os.Getenv("LANG")
	}
	return Characteristics{
		UserAgent:    "coutupro-cli",
		Language:     language,
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		Timezone:     time.Local.String(),
		RenderSample: hostname,
	}
}
