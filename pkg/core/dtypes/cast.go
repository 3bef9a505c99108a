// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"reflect"

	"github.com/gomlx/gocl/pkg/core/clerr"
	"golang.org/x/exp/constraints"
)

// Number is the constraint of the types Cast converts between.
type Number interface {
	constraints.Integer | constraints.Float
}

// Cast converts value to the type To, failing with a clerr.KindNumericConversion error if the
// value would overflow, change sign or lose precision.
func Cast[To, From Number](value From) (To, error) {
	converted := To(value)
	half := 0.5
	toIsFloat := To(half) != 0
	if value != value { // NaN
		if toIsFloat {
			return converted, nil
		}
		return 0, castError[To](value)
	}
	if From(converted) != value || (value < 0) != (converted < 0) {
		return 0, castError[To](value)
	}
	return converted, nil
}

func castError[To, From Number](value From) error {
	return clerr.NumericConversion(reflect.TypeFor[From]().String(), reflect.TypeFor[To]().String(), value)
}

// MustCast is like Cast, but panics on failure.
func MustCast[To, From Number](value From) To {
	converted, err := Cast[To](value)
	if err != nil {
		panic(err)
	}
	return converted
}
