package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedPayload indicates that a payload cannot be valid PCM in the expected format.
var ErrMalformedPayload = errors.New("malformed pcm payload")

// DecodePCM decodes a base64 encoded headerless PCM payload. The decoded length must be a
// whole number of frames for the given format.
func DecodePCM(payload string, format Format) ([]byte, error) {
	formatErr := format.Validate()
	if formatErr != nil {
		return nil, formatErr
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %w", ErrMalformedPayload, err)
	}

	blockAlign := format.BlockAlign()
	if len(data)%blockAlign != 0 {
		return nil, fmt.Errorf(
			"%w: %d bytes is not a multiple of the %d byte sample width",
			ErrMalformedPayload,
			len(data),
			blockAlign,
		)
	}

	return data, nil
}

// EncodePCM is the inverse of DecodePCM.
func EncodePCM(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}
