package audio

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rajeev0521/project-AVA/pkg/audioconv"
)

// DumpUtterance writes a captured command as 16-bit WAV under dir, so
// misheard commands can be replayed while tuning the endpointer or the
// whisper model. Returns the file path.
func DumpUtterance(dir string, samples []float32, rate int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "utterance-"+time.Now().Format("20060102-150405.000")+".wav")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := audioconv.EncodeWAV(f, samples, rate); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
