package identity

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// salt mixed into the fourth hash so the identity differs from a bare
// fingerprint hash even on sparse devices.
const fingerprintSalt = "clinical-trials-agent"

// Signals are the low-entropy device characteristics the fingerprint is
// built from. Every field is optional: absent values stay zero and the
// derived identity is still deterministic, just less discriminating.
type Signals struct {
	ScreenWidth  int
	ScreenHeight int
	ColorDepth   int
	PixelDepth   int
	PixelRatio   float64
	Timezone     string
	Language     string
	Languages    []string
	Platform     string
	Cores        int
	MemoryGB     float64
}

// Collector supplies device signals.
type Collector interface {
	Collect() Signals
}

// SystemCollector reads the signals a Go process can observe: timezone,
// locale environment, platform, core count, and total memory. Display
// signals have no terminal equivalent and stay zero.
type SystemCollector struct{}

func (SystemCollector) Collect() Signals {
	return Signals{
		Timezone:  time.Now().Location().String(),
		Language:  localeEnv(),
		Languages: languageList(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Cores:     runtime.NumCPU(),
		MemoryGB:  approximateMemoryGB(),
	}
}

// localeEnv returns the primary locale, LC_ALL winning over LANG.
func localeEnv() string {
	if v := os.Getenv("LC_ALL"); v != "" {
		return v
	}
	return os.Getenv("LANG")
}

// languageList splits the LANGUAGE priority list (colon separated).
func languageList() []string {
	v := os.Getenv("LANGUAGE")
	if v == "" {
		return nil
	}
	return strings.Split(v, ":")
}

// approximateMemoryGB reads total system memory rounded to whole gigabytes,
// or 0 when unavailable.
func approximateMemoryGB() float64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0
		}
		return float64(int(kb / (1024 * 1024)))
	}
	return 0
}

// Fingerprint concatenates the ordered signals into one delimited string.
func Fingerprint(s Signals) string {
	parts := []string{
		fmt.Sprintf("%dx%d", s.ScreenWidth, s.ScreenHeight),
		strconv.Itoa(s.ColorDepth),
		strconv.Itoa(s.PixelDepth),
		strconv.FormatFloat(s.PixelRatio, 'f', -1, 64),
		s.Timezone,
		s.Language,
		strings.Join(s.Languages, ","),
		s.Platform,
		strconv.Itoa(s.Cores),
		strconv.FormatFloat(s.MemoryGB, 'f', -1, 64),
	}
	return strings.Join(parts, "|")
}

// Derive turns device signals into a UUID-shaped identifier.
//
// Four 32-bit hashes are taken: of the fingerprint, of its character
// reverse, of the decimal concatenation of those two hash values, and of
// the fingerprint with a fixed salt appended. Their hex forms are grouped
// 8-4-4-4-12 with the version nibble forced to 4 so the result passes
// superficial UUID validation. There is nothing cryptographic here.
func Derive(s Signals) string {
	fingerprint := Fingerprint(s)

	h1 := hash(fingerprint)
	h2 := hash(reverse(fingerprint))
	h3 := hash(strconv.FormatUint(uint64(h1), 10) + strconv.FormatUint(uint64(h2), 10))
	h4 := hash(fingerprint + fingerprintSalt)

	hex := fmt.Sprintf("%08x%08x%08x%08x", h1, h2, h3, h4)
	return fmt.Sprintf("%s-%s-4%s-%s-%s", hex[0:8], hex[8:12], hex[13:16], hex[16:20], hex[20:32])
}

// hash is the djb2 XOR variant: seed 5381, multiply by 33 and XOR each
// character, folded to an unsigned 32-bit value.
func hash(s string) uint32 {
	var h uint32 = 5381
	for _, c := range s {
		h = (h * 33) ^ uint32(c)
	}
	return h
}

// reverse returns the character-reverse of s.
func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
