package process

import (
	"reflect"

	"github.com/golang/mock/gomock"
)

// MockRunner is a hand-written, mockgen-shaped mock of Runner (mockgen
// itself cannot be run in this environment, so this follows the documented
// gomock.Controller/EXPECT() runtime API by hand). Used by
// supervisor_test.go to exercise the timeout and shutdown-signal races
// without spawning real processes.
type MockRunner struct {
	ctrl     *gomock.Controller
	recorder *MockRunnerMockRecorder
}

// MockRunnerMockRecorder is the recorder half of MockRunner's EXPECT() API.
type MockRunnerMockRecorder struct {
	mock *MockRunner
}

// NewMockRunner constructs a MockRunner bound to ctrl.
func NewMockRunner(ctrl *gomock.Controller) *MockRunner {
	mock := &MockRunner{ctrl: ctrl}
	mock.recorder = &MockRunnerMockRecorder{mock: mock}
	return mock
}

// EXPECT returns the recorder used to set up call expectations.
func (m *MockRunner) EXPECT() *MockRunnerMockRecorder {
	return m.recorder
}

// Start mocks Runner.Start.
func (m *MockRunner) Start() error {
	ret := m.ctrl.Call(m, "Start")
	ret0, _ := ret[0].(error)
	return ret0
}

// Start records an expectation for a Start call.
func (mr *MockRunnerMockRecorder) Start() *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Start", reflect.TypeOf((*MockRunner)(nil).Start))
}

// Wait mocks Runner.Wait.
func (m *MockRunner) Wait() error {
	ret := m.ctrl.Call(m, "Wait")
	ret0, _ := ret[0].(error)
	return ret0
}

// Wait records an expectation for a Wait call.
func (mr *MockRunnerMockRecorder) Wait() *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Wait", reflect.TypeOf((*MockRunner)(nil).Wait))
}

// Pid mocks Runner.Pid.
func (m *MockRunner) Pid() int {
	ret := m.ctrl.Call(m, "Pid")
	ret0, _ := ret[0].(int)
	return ret0
}

// Pid records an expectation for a Pid call.
func (mr *MockRunnerMockRecorder) Pid() *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Pid", reflect.TypeOf((*MockRunner)(nil).Pid))
}

// Kill mocks Runner.Kill.
func (m *MockRunner) Kill() error {
	ret := m.ctrl.Call(m, "Kill")
	ret0, _ := ret[0].(error)
	return ret0
}

// Kill records an expectation for a Kill call.
func (mr *MockRunnerMockRecorder) Kill() *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Kill", reflect.TypeOf((*MockRunner)(nil).Kill))
}
