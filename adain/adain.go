// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package adain

import (
	"github.com/born-ml/stylize/internal/adain"
	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/stylizer"
)

// Backend is the CPU backend with gradient recording used by sessions.
type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// Options configures a Session.
type Options = stylizer.Options

// Session stylizes images with a trained decoder.
type Session = stylizer.Session[Backend]

// CheckpointInfo describes a restored decoder checkpoint.
type CheckpointInfo = adain.CheckpointInfo

// ConfigurationError reports an invalid setting.
type ConfigurationError = adain.ConfigurationError

// Errors returned by sessions. Match them with errors.Is.
var (
	ErrConfiguration     = adain.ErrConfiguration
	ErrShapeMismatch     = adain.ErrShapeMismatch
	ErrInvalidAlpha      = adain.ErrInvalidAlpha
	ErrNumericDegeneracy = adain.ErrNumericDegeneracy
)

// NewSession restores the decoder at opts.Decoder on the CPU backend.
//
// Example:
//
//	session, err := adain.NewSession(adain.Options{Decoder: "decoder.born"})
//	if err != nil {
//	    return err
//	}
//	out, err := session.Stylize(content, style, 0.8)
func NewSession(opts Options) (*Session, error) {
	return stylizer.New(opts, autodiff.New(cpu.New()))
}
