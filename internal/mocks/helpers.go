package mocks

import (
	"testing"

	"go.uber.org/mock/gomock"
)

// NewMockReaderForTest creates a new mock Reader wired to the test's lifecycle
func NewMockReaderForTest(t *testing.T) *MockReader {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockReader(ctrl)
}
