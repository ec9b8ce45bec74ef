package executor

// Hand-written in the go.uber.org/mock/gomock calling convention (the shape
// `mockgen` itself emits: ctrl/recorder fields, EXPECT(), RecordCallWithMethodType)
// so the VM seam can be driven by argument matchers and call-count
// expectations in executor tests, alongside the always-succeeds NoopVM.

import (
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"

	"github.com/objectledger/valcore/types"
)

// MockVM is a mock of the VM interface.
type MockVM struct {
	ctrl     *gomock.Controller
	recorder *MockVMMockRecorder
}

// MockVMMockRecorder is the mock recorder for MockVM.
type MockVMMockRecorder struct {
	mock *MockVM
}

// NewMockVM creates a new mock instance.
func NewMockVM(ctrl *gomock.Controller) *MockVM {
	mock := &MockVM{ctrl: ctrl}
	mock.recorder = &MockVMMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockVM) EXPECT() *MockVMMockRecorder {
	return m.recorder
}

// Apply mocks base method.
func (m *MockVM) Apply(tx *types.Transaction, view *StateView) (*types.TransactionEffects, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Apply", tx, view)
	ret0, _ := ret[0].(*types.TransactionEffects)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Apply indicates an expected call of Apply.
func (mr *MockVMMockRecorder) Apply(tx, view interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Apply", reflect.TypeOf((*MockVM)(nil).Apply), tx, view)
}
