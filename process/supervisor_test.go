package process

import (
	"bufio"
	"bytes"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/brandonshearin/pqueue/output"
	"github.com/brandonshearin/pqueue/syncutil"
	"github.com/brandonshearin/pqueue/taskqueue"
	"github.com/golang/mock/gomock"
	gc "gopkg.in/check.v1"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(SupervisorTestSuite))

type SupervisorTestSuite struct{}

func (s *SupervisorTestSuite) newSinkAndSources(c *gc.C) (*output.Sink, *output.Source, *output.Source, string) {
	path := c.MkDir() + "/out.log"
	sink, err := output.NewSink(path)
	c.Assert(err, gc.IsNil)
	stdout, stderr, err := sink.NewSources()
	c.Assert(err, gc.IsNil)
	return sink, stdout, stderr, path
}

func (s *SupervisorTestSuite) noopWaiters() (syncutil.Waiter, syncutil.Waiter) {
	_, w1 := syncutil.NewCondition()
	_, w2 := syncutil.NewCondition()
	return w1, w2
}

func (s *SupervisorTestSuite) TestRealProcessOutputIsCaptured(c *gc.C) {
	sink, stdout, stderr, path := s.newSinkAndSources(c)
	workerWaiter, serverWaiter := s.noopWaiters()

	sup := New(nil)
	task := taskqueue.NewTask("/bin/echo", []string{"hello"}, 0, "")
	sup.Run(task, stdout, stderr, workerWaiter, serverWaiter)
	sink.Close()

	data, err := ioutil.ReadFile(path)
	c.Assert(err, gc.IsNil)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	c.Assert(lines, gc.HasLen, 1)
	c.Assert(lines[0], gc.Matches, `\[\d+:stdout\]: hello`)
}

func (s *SupervisorTestSuite) TestRealProcessTimeoutReturnsPromptly(c *gc.C) {
	sink, stdout, stderr, _ := s.newSinkAndSources(c)
	defer sink.Close()
	workerWaiter, serverWaiter := s.noopWaiters()

	sup := New(nil)
	task := taskqueue.NewTask("/bin/sleep", []string{"60"}, 200*time.Millisecond, "")

	start := time.Now()
	sup.Run(task, stdout, stderr, workerWaiter, serverWaiter)
	elapsed := time.Since(start)

	c.Assert(elapsed < 5*time.Second, gc.Equals, true)
}

func (s *SupervisorTestSuite) TestMockRunnerTimeoutSignalsKill(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	mock := NewMockRunner(ctrl)
	never := make(chan struct{})
	mock.EXPECT().Start().Return(nil)
	mock.EXPECT().Pid().Return(4242)
	mock.EXPECT().Wait().DoAndReturn(func() error { <-never; return nil })
	killed := make(chan struct{})
	mock.EXPECT().Kill().DoAndReturn(func() error { close(killed); return nil })

	sink, stdout, stderr, _ := s.newSinkAndSources(c)
	defer sink.Close()
	workerWaiter, serverWaiter := s.noopWaiters()

	sup := New(nil)
	sup.newRunner = func(taskqueue.Task, *os.File, *os.File) (Runner, error) { return mock, nil }

	task := taskqueue.NewTask("fake", nil, 20*time.Millisecond, "")
	sup.Run(task, stdout, stderr, workerWaiter, serverWaiter)

	select {
	case <-killed:
	case <-time.After(time.Second):
		c.Fatal("timeout did not signal Kill")
	}
}

func (s *SupervisorTestSuite) TestMockRunnerWorkerShutdownSignalsKill(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	mock := NewMockRunner(ctrl)
	never := make(chan struct{})
	mock.EXPECT().Start().Return(nil)
	mock.EXPECT().Pid().Return(99)
	mock.EXPECT().Wait().DoAndReturn(func() error { <-never; return nil })
	killed := make(chan struct{})
	mock.EXPECT().Kill().DoAndReturn(func() error { close(killed); return nil })

	sink, stdout, stderr, _ := s.newSinkAndSources(c)
	defer sink.Close()

	workerTrigger, workerWaiter := syncutil.NewCondition()
	_, serverWaiter := syncutil.NewCondition()

	sup := New(nil)
	sup.newRunner = func(taskqueue.Task, *os.File, *os.File) (Runner, error) { return mock, nil }

	done := make(chan struct{})
	go func() {
		task := taskqueue.NewTask("fake", nil, 0, "")
		sup.Run(task, stdout, stderr, workerWaiter, serverWaiter)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	workerTrigger.Set()

	select {
	case <-killed:
	case <-time.After(time.Second):
		c.Fatal("worker shutdown did not signal Kill")
	}
	<-done
}
