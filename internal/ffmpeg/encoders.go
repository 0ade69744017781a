package ffmpeg

import (
	"bufio"
	"regexp"
	"strings"
)

// Encoder is one video encoder line from `ffmpeg -encoders`.
type Encoder struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	HWAccel     bool   `json:"hwaccel"`
}

var (
	encoderLineRegex = regexp.MustCompile(`^\s*([VASF.]{6})\s+(\S+)\s+(.+)$`)
	hwaccelRegex     = regexp.MustCompile(`(?i)(nvenc|qsv|amf|vaapi|videotoolbox|vdpau|cuda|v4l2m2m|vulkan)`)
)

// EncodersArgs returns the argv that lists the encoders of binary.
func EncodersArgs(binary string) []string {
	if binary == "" {
		binary = DefaultBinary
	}
	return []string{binary, "-hide_banner", "-encoders"}
}

// ParseEncoders extracts the video encoders from `ffmpeg -encoders` output.
func ParseEncoders(output string) []Encoder {
	var result []Encoder
	started := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		// The encoder table follows a legend that ends with a " ------" rule.
		if !started {
			if strings.HasPrefix(strings.TrimSpace(line), "------") {
				started = true
			}
			continue
		}

		m := encoderLineRegex.FindStringSubmatch(line)
		if m == nil || m[1][0] != 'V' {
			continue
		}
		result = append(result, Encoder{
			Name:        m[2],
			Description: m[3],
			HWAccel:     hwaccelRegex.MatchString(m[2]) || hwaccelRegex.MatchString(m[3]),
		})
	}
	return result
}

// HasEncoder reports whether name is among encoders. The bare "h264" codec
// name is satisfied by any H.264 encoder.
func HasEncoder(encoders []Encoder, name string) bool {
	for _, e := range encoders {
		if e.Name == name {
			return true
		}
		if name == "h264" && strings.Contains(e.Name, "264") {
			return true
		}
	}
	return false
}
