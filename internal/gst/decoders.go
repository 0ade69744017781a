package gst

import "slices"

var (
	softwareDecoders = []string{"openh264dec", "avdec_h264"}
	hardwareDecoders = []string{"vah264dec", "nvh264dec", "v4l2h264dec"}
)

// DecoderCandidates returns the H.264 decoders to try, best first.
// openh264dec leads the software group since it emits I420 that
// pipewiresink accepts without renegotiation.
func DecoderCandidates(preferHardware bool) []string {
	if preferHardware {
		return slices.Concat(hardwareDecoders, softwareDecoders)
	}
	return slices.Concat(softwareDecoders, hardwareDecoders)
}

// SelectDecoder returns the first installed decoder in preference order.
func SelectDecoder(reg CapabilityRegistry, preferHardware bool) (string, error) {
	for _, name := range DecoderCandidates(preferHardware) {
		if reg.Has(name) {
			return name, nil
		}
	}
	return "", ErrNoDecoder
}

// AvailableDecoders lists every installed H.264 decoder, hardware first.
func AvailableDecoders(reg CapabilityRegistry) []string {
	var found []string
	for _, name := range DecoderCandidates(true) {
		if reg.Has(name) {
			found = append(found, name)
		}
	}
	return found
}
