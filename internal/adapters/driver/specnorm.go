package driver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Resource floors. Requests below these are rounded up and logged; the
// rounded value is emitted as a raw byte count to sidestep unit ambiguity.
const (
	MinMemoryBytes = 128 * 1024 * 1024
	MinDiskBytes   = 100 * 1024 * 1024
)

// ParseMemoryString converts a size string to bytes. Both docker-style
// decimal suffixes (k/kb, m/mb, g/gb) and kubernetes binary suffixes
// (Ki/Mi/Gi) are accepted, all meaning powers of 1024. A bare number is
// bytes.
func ParseMemoryString(value string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(value))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "ki"):
		multiplier, s = 1024, s[:len(s)-2]
	case strings.HasSuffix(s, "mi"):
		multiplier, s = 1024*1024, s[:len(s)-2]
	case strings.HasSuffix(s, "gi"):
		multiplier, s = 1024*1024*1024, s[:len(s)-2]
	case strings.HasSuffix(s, "kb"):
		multiplier, s = 1024, s[:len(s)-2]
	case strings.HasSuffix(s, "mb"):
		multiplier, s = 1024*1024, s[:len(s)-2]
	case strings.HasSuffix(s, "gb"):
		multiplier, s = 1024*1024*1024, s[:len(s)-2]
	case strings.HasSuffix(s, "k"):
		multiplier, s = 1024, s[:len(s)-1]
	case strings.HasSuffix(s, "m"):
		multiplier, s = 1024*1024, s[:len(s)-1]
	case strings.HasSuffix(s, "g"):
		multiplier, s = 1024*1024*1024, s[:len(s)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size string %q: %w", value, err)
	}
	return n * multiplier, nil
}

// EnforceMinimumMemory parses a memory string and rounds it up to the
// 128 MiB floor when it falls below.
func EnforceMinimumMemory(value string, log *logrus.Logger) (int64, error) {
	bytes, err := ParseMemoryString(value)
	if err != nil {
		return 0, err
	}
	if bytes < MinMemoryBytes {
		log.WithFields(logrus.Fields{
			"requested": value,
			"floor":     MinMemoryBytes,
		}).Warn("memory request below minimum, rounding up")
		bytes = MinMemoryBytes
	}
	return bytes, nil
}

// EnforceMinimumDisk parses a disk string and rounds it up to the 100 MiB
// floor when it falls below.
func EnforceMinimumDisk(value string, log *logrus.Logger) (int64, error) {
	bytes, err := ParseMemoryString(value)
	if err != nil {
		return 0, err
	}
	if bytes < MinDiskBytes {
		log.WithFields(logrus.Fields{
			"requested": value,
			"floor":     MinDiskBytes,
		}).Warn("disk request below minimum, rounding up")
		bytes = MinDiskBytes
	}
	return bytes, nil
}

// NormalizeMemoryForKubernetes rewrites docker-style size suffixes into
// kubernetes binary units. A bare "m" suffix means mebibytes to docker but
// milli-bytes to kubernetes, so it must become "Mi" before any resource
// quantity is built. Values that had to be rounded up to the floor come back
// as a raw byte count.
func NormalizeMemoryForKubernetes(value string, log *logrus.Logger) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return v, nil
	}

	safe, err := EnforceMinimumMemory(v, log)
	if err != nil {
		return "", err
	}
	original, _ := ParseMemoryString(v)
	if safe > original {
		return strconv.FormatInt(safe, 10), nil
	}

	lower := strings.ToLower(v)
	switch {
	case strings.HasSuffix(lower, "ki"), strings.HasSuffix(lower, "mi"), strings.HasSuffix(lower, "gi"):
		return v, nil
	case strings.HasSuffix(lower, "kb"):
		return v[:len(v)-2] + "Ki", nil
	case strings.HasSuffix(lower, "mb"):
		return v[:len(v)-2] + "Mi", nil
	case strings.HasSuffix(lower, "gb"):
		return v[:len(v)-2] + "Gi", nil
	case strings.HasSuffix(lower, "k"):
		return v[:len(v)-1] + "Ki", nil
	case strings.HasSuffix(lower, "m"):
		return v[:len(v)-1] + "Mi", nil
	case strings.HasSuffix(lower, "g"):
		return v[:len(v)-1] + "Gi", nil
	}
	// Bare byte count passes through
	return v, nil
}

// NormalizeDiskForKubernetes applies the same unit rewrite to disk sizes,
// with the disk floor.
func NormalizeDiskForKubernetes(value string, log *logrus.Logger) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return v, nil
	}

	safe, err := EnforceMinimumDisk(v, log)
	if err != nil {
		return "", err
	}
	original, _ := ParseMemoryString(v)
	if safe > original {
		return strconv.FormatInt(safe, 10), nil
	}

	lower := strings.ToLower(v)
	switch {
	case strings.HasSuffix(lower, "ki"), strings.HasSuffix(lower, "mi"), strings.HasSuffix(lower, "gi"):
		return v, nil
	case strings.HasSuffix(lower, "kb"):
		return v[:len(v)-2] + "Ki", nil
	case strings.HasSuffix(lower, "mb"):
		return v[:len(v)-2] + "Mi", nil
	case strings.HasSuffix(lower, "gb"):
		return v[:len(v)-2] + "Gi", nil
	case strings.HasSuffix(lower, "k"):
		return v[:len(v)-1] + "Ki", nil
	case strings.HasSuffix(lower, "m"):
		return v[:len(v)-1] + "Mi", nil
	case strings.HasSuffix(lower, "g"):
		return v[:len(v)-1] + "Gi", nil
	}
	return v, nil
}
