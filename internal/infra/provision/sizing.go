package provision

// VolumeSizing bounds the volume we attach to a worker machine. The buffer
// absorbs archive-extraction overhead; the clamp keeps cost exposure bounded
// and satisfies the provider minimum.
type VolumeSizing struct {
	MinGB    int
	MaxGB    int
	BufferGB int
}

const bytesPerGiB = int64(1) << 30

// CalculateVolumeSizeGB converts the expected total transfer size into a
// volume size: ceil(totalBytes/GiB) + buffer, clamped to [MinGB, MaxGB].
// Both bounds are inclusive; zero bytes yields the minimum.
func CalculateVolumeSizeGB(totalBytes int64, s VolumeSizing) int {
	gb := int((totalBytes + bytesPerGiB - 1) / bytesPerGiB)
	gb += s.BufferGB
	if gb < s.MinGB {
		return s.MinGB
	}
	if gb > s.MaxGB {
		return s.MaxGB
	}
	return gb
}
