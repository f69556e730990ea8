package vintage

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Identifier transforms normalize the per-decade tract ID schemes (bare
// numerics in early years, GISJOIN strings later) onto one canonical string
// form, so the same join logic serves every vintage. A transform spec is a
// colon-separated directive:
//
//	trim            strip surrounding whitespace
//	cast            numeric string to integer form ("25.0" -> "25")
//	pad:N           left-zero-pad to width N
//	substr:START:END  half-open rune slice
//	prefix:S        prepend the literal S
func ApplyTransforms(transforms []string, id string) (string, error) {
	for _, spec := range transforms {
		var err error
		id, err = applyTransform(spec, id)
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

func applyTransform(spec, id string) (string, error) {
	op, rest, _ := strings.Cut(spec, ":")
	switch op {
	case "trim":
		return strings.TrimSpace(id), nil

	case "cast":
		f, err := strconv.ParseFloat(strings.TrimSpace(id), 64)
		if err != nil {
			return "", eris.Wrapf(err, "transform cast: %q is not numeric", id)
		}
		return strconv.FormatInt(int64(f), 10), nil

	case "pad":
		width, err := strconv.Atoi(rest)
		if err != nil || width <= 0 {
			return "", eris.Errorf("transform pad: bad width %q", rest)
		}
		for len(id) < width {
			id = "0" + id
		}
		return id, nil

	case "substr":
		startStr, endStr, ok := strings.Cut(rest, ":")
		if !ok {
			return "", eris.Errorf("transform substr: want substr:START:END, got %q", spec)
		}
		start, err1 := strconv.Atoi(startStr)
		end, err2 := strconv.Atoi(endStr)
		if err1 != nil || err2 != nil || start < 0 || end < start {
			return "", eris.Errorf("transform substr: bad range %q", rest)
		}
		runes := []rune(id)
		if start > len(runes) {
			return "", nil
		}
		if end > len(runes) {
			end = len(runes)
		}
		return string(runes[start:end]), nil

	case "prefix":
		return rest + id, nil

	default:
		return "", eris.Errorf("transform: unknown directive %q", spec)
	}
}

// checkTransform validates a spec without applying it.
func checkTransform(spec string) error {
	_, err := applyTransform(spec, "0")
	return err
}
