// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/plugmesh/plugmesh/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("IO_ERROR").Errorf("test error")
	// Should not fail
	errutil.AssertErrorCode(t, err, "IO_ERROR")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("artifact", "a.plugin").Errorf("test error")
	// Should not fail
	errutil.AssertErrorContext(t, err, "artifact", "a.plugin")
}
