// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package tools

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator validates a single command line option token.
type Validator interface {
	IsValid(token string) bool
}

type validator struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewValidator creates a new Validator. Empty expressions are ignored.
func NewValidator(allow, block []string) (Validator, error) {
	v := &validator{}

	for _, exp := range allow {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("invalid allow expression '%s': %w", exp, err)
		}
		v.allow = append(v.allow, re)
	}

	for _, exp := range block {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("invalid block expression '%s': %w", exp, err)
		}
		v.block = append(v.block, re)
	}

	return v, nil
}

func (v *validator) IsValid(token string) bool {
	for _, e := range v.block {
		if e.MatchString(token) {
			return false
		}
	}
	if len(v.allow) == 0 {
		return true
	}
	for _, e := range v.allow {
		if e.MatchString(token) {
			return true
		}
	}
	return false
}

// Options the encoder must not receive: they fight the "-o <output> <input>" convention.
var encoderBlock = []string{
	`^-o$`,
	`^-c$`,
	`^--stdout$`,
	`^--output-name(=.*)?$`,
	`^--output-prefix(=.*)?$`,
}

// Options the ripper must not receive: anything but WAV breaks the trackNN.cdda.wav convention.
var ripperBlock = []string{
	`^-[arRf]$`,
	`^--output-(aiff|aifc|raw|raw-big-endian|raw-little-endian)$`,
	`^--stdout$`,
}

// NewEncoderValidator returns the default validator for encoder options.
func NewEncoderValidator() Validator {
	v, _ := NewValidator(nil, encoderBlock)
	return v
}

// NewRipperValidator returns the default validator for ripper options.
func NewRipperValidator() Validator {
	v, _ := NewValidator(nil, ripperBlock)
	return v
}

// ValidateOptions splits opts on whitespace and rejects the first blocked token.
func ValidateOptions(v Validator, opts string) error {
	for _, token := range strings.Fields(opts) {
		if !v.IsValid(token) {
			return fmt.Errorf("%w: %q", ErrBlockedOption, token)
		}
	}
	return nil
}
