/*Package protocol defines the pqueue wire schema: the JSON tagged-union
request and response envelopes exchanged over a frame.Reader/frame.Writer
pair, and the sentinel errors the rest of the daemon classifies against with
xerrors.Is to decide response-vs-close behavior.*/
package protocol

import "golang.org/x/xerrors"

// Request discriminator values (the "type" field).
const (
	TypeStopServer  = "stop_server"
	TypeCreateQueue = "create_queue"
	TypeRemoveQueue = "remove_queue"
	TypeSend        = "send"
	TypeListQueues  = "list_queues"
	TypeListTasks   = "list_tasks"
)

// Response discriminator values (the "status" field).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Sentinel errors classified by the session handler and cmd/ entry points.
var (
	// ErrNotFound is wrapped when a queue name does not exist in the registry.
	ErrNotFound = xerrors.New("queue not found")
	// ErrAlreadyExists is wrapped when CreateQueue names an existing queue.
	ErrAlreadyExists = xerrors.New("queue already exists")
	// ErrTemplateArity is wrapped when Send's args fail the queue template's arity check.
	ErrTemplateArity = xerrors.New("argument count does not match template")
	// ErrEmptyArgs is wrapped when Send (after template expansion, if any) has no arguments at all.
	ErrEmptyArgs = xerrors.New("send requires at least one argument (the binary to run)")
	// ErrProtocol is wrapped around malformed frames or JSON payloads.
	ErrProtocol = xerrors.New("malformed request")
	// ErrUnknownRequestType is wrapped when a request's "type" field is not recognized.
	ErrUnknownRequestType = xerrors.New("unknown request type")
)

// Duration is the wire representation of a time.Duration: a split
// {secs, nanos} pair, which keeps the JSON integral on both fields.
type Duration struct {
	Secs  uint64 `json:"secs"`
	Nanos uint32 `json:"nanos"`
}

// Request is the tagged union of every client->server message. Only the
// fields relevant to Type are populated; the rest are left at their zero
// value and omitted from the wire encoding.
type Request struct {
	Type string `json:"type"`

	// CreateQueue, RemoveQueue, Send, ListTasks
	Name string `json:"name,omitempty"`

	// CreateQueue
	MaxParallel uint    `json:"max_parallel,omitempty"`
	Output      *string `json:"output,omitempty"`
	Template    *string `json:"template,omitempty"`

	// CreateQueue, Send
	Timeout *Duration `json:"timeout,omitempty"`
	Dir     *string   `json:"dir,omitempty"`

	// Send
	Args []string `json:"args,omitempty"`
}

// Response is the tagged union of every server->client message.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Queues  []QueueInfo `json:"queues,omitempty"`
	Tasks   []TaskInfo  `json:"tasks,omitempty"`
}

// QueueInfo is one entry of a ListQueues response payload.
type QueueInfo struct {
	Name string `json:"name"`
}

// TaskInfo is one entry of a ListTasks response payload: the fully expanded
// argument vector, including the binary at position 0.
type TaskInfo struct {
	Args []string `json:"args"`
}

// Success builds a bare successful response with no payload, used for
// StopServer, CreateQueue, RemoveQueue, and Send.
func Success() *Response {
	return &Response{Status: StatusSuccess}
}

// SuccessQueues builds a successful ListQueues response.
func SuccessQueues(names []string) *Response {
	queues := make([]QueueInfo, len(names))
	for i, n := range names {
		queues[i] = QueueInfo{Name: n}
	}
	return &Response{Status: StatusSuccess, Queues: queues}
}

// SuccessTasks builds a successful ListTasks response.
func SuccessTasks(argv [][]string) *Response {
	tasks := make([]TaskInfo, len(argv))
	for i, a := range argv {
		tasks[i] = TaskInfo{Args: a}
	}
	return &Response{Status: StatusSuccess, Tasks: tasks}
}

// Error builds an error response carrying err's message.
func Error(err error) *Response {
	return &Response{Status: StatusError, Message: err.Error()}
}
