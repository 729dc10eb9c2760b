// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dispatch

// Options is the bitmask over query modes. It is a pure value type: the
// three predicates below never consult anything besides the mask itself.
type Options uint8

const (
	Historical Options = 0x01
	Continuous Options = 0x02
	Unified    Options = Historical | Continuous
)

func (o Options) HasHistorical() bool { return o&Historical != 0 }
func (o Options) HasContinuous() bool { return o&Continuous != 0 }
func (o Options) HasUnified() bool    { return o.HasHistorical() && o.HasContinuous() }
