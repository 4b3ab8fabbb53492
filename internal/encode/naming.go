// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package encode

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// PadOrdinal zero-pads a track number to two digits. Wider numbers are left alone.
func PadOrdinal(n int) string {
	return fmt.Sprintf("%02d", n)
}

// InputName is the file the ripper writes for track n.
func InputName(n int) string {
	return "track" + PadOrdinal(n) + ".cdda.wav"
}

// OutputName is the encoded file name for track n: "<NN> <title>.flac", sanitized.
func OutputName(n int, title string) string {
	return SanitizeFilename(PadOrdinal(n) + " " + title + ".flac")
}

const forbidden = `/\:*?"<>|`

// SanitizeFilename makes name safe to use as a single path component.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(forbidden, r) {
			return -1
		}
		return r
	}, name)
	return strings.Trim(name, " .")
}
