package gpu

import "fmt"

// Recorder captures device commands into a Recording.
//
// Misuse, such as drawing outside a render pass, is remembered and
// reported by Finish; later calls are ignored once an error is recorded.
// A Recorder is reused across frames with Reset.
type Recorder struct {
	label    string
	commands []Command
	inPass   bool
	err      error
}

// NewRecorder creates an empty Recorder.
func NewRecorder(label string) *Recorder {
	return &Recorder{
		label:    label,
		commands: make([]Command, 0, 64),
	}
}

// Reset clears the recorded commands, keeping the allocated storage.
// Recordings returned by earlier Finish calls must not be used after Reset.
func (r *Recorder) Reset() {
	clear(r.commands)
	r.commands = r.commands[:0]
	r.inPass = false
	r.err = nil
}

// Len returns the number of recorded commands.
func (r *Recorder) Len() int {
	return len(r.commands)
}

func (r *Recorder) fail(err error, cmd CommandType) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: command %d (%s): %w", r.label, len(r.commands), cmd, err)
	}
}

func (r *Recorder) outside(c Command) {
	if r.err != nil {
		return
	}
	if r.inPass {
		r.fail(ErrPassOpen, c.Type())
		return
	}
	r.commands = append(r.commands, c)
}

func (r *Recorder) inside(c Command) {
	if r.err != nil {
		return
	}
	if !r.inPass {
		r.fail(ErrNoPass, c.Type())
		return
	}
	r.commands = append(r.commands, c)
}

// CopyBuffer copies size bytes from src to dst. It is illegal inside a pass.
func (r *Recorder) CopyBuffer(src, dst Buffer, size uint64) {
	r.outside(CopyBufferCommand{Src: src, Dst: dst, Size: size})
}

// Barrier orders writes in the src stages before reads in the dst stages.
func (r *Recorder) Barrier(src, dst Stage) {
	r.outside(BarrierCommand{Src: src, Dst: dst})
}

// BeginPass starts a render pass on target.
func (r *Recorder) BeginPass(target Target, clear Color, clearDepth float32) {
	r.outside(BeginPassCommand{Target: target, Clear: clear, ClearDepth: clearDepth})
	if r.err == nil {
		r.inPass = true
	}
}

// SetViewport sets the viewport size in pixels.
func (r *Recorder) SetViewport(width, height int) {
	r.inside(SetViewportCommand{Width: width, Height: height})
}

// SetPipeline binds p for subsequent draws.
func (r *Recorder) SetPipeline(p Pipeline) {
	r.inside(SetPipelineCommand{Pipeline: p})
}

// SetBindGroup binds g at set index.
func (r *Recorder) SetBindGroup(index uint32, g BindGroup) {
	r.inside(SetBindGroupCommand{Index: index, Group: g})
}

// SetVertexBuffer binds b as the vertex buffer.
func (r *Recorder) SetVertexBuffer(b Buffer, offset uint64) {
	r.inside(SetVertexBufferCommand{Buffer: b, Offset: offset})
}

// PushConstants sets push constant bytes. data is copied.
func (r *Recorder) PushConstants(data []byte) {
	r.inside(PushConstantsCommand{Data: append([]byte(nil), data...)})
}

// Draw records a non-indexed draw.
func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.inside(DrawCommand{
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
		FirstInstance: firstInstance,
	})
}

// EndPass ends the current render pass.
func (r *Recorder) EndPass() {
	r.inside(EndPassCommand{})
	if r.err == nil {
		r.inPass = false
	}
}

// Finish returns the recorded commands, or the first misuse error.
func (r *Recorder) Finish() (*Recording, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.inPass {
		return nil, fmt.Errorf("%s: finish: %w", r.label, ErrPassOpen)
	}
	return &Recording{label: r.label, commands: r.commands}, nil
}

// Recording is an immutable list of commands ready for submission.
type Recording struct {
	label    string
	commands []Command
}

// Label returns the recorder label the recording came from.
func (r *Recording) Label() string {
	return r.label
}

// Commands returns the recorded commands.
func (r *Recording) Commands() []Command {
	return r.commands
}

// Executor receives replayed commands. Device backends implement it to
// translate a Recording into native work.
type Executor interface {
	CopyBuffer(c CopyBufferCommand) error
	Barrier(c BarrierCommand) error
	BeginPass(c BeginPassCommand) error
	SetViewport(c SetViewportCommand) error
	SetPipeline(c SetPipelineCommand) error
	SetBindGroup(c SetBindGroupCommand) error
	SetVertexBuffer(c SetVertexBufferCommand) error
	PushConstants(c PushConstantsCommand) error
	Draw(c DrawCommand) error
	EndPass() error
}

// Playback replays the recording to ex, stopping at the first error.
func (r *Recording) Playback(ex Executor) error {
	for i, cmd := range r.commands {
		var err error
		switch c := cmd.(type) {
		case CopyBufferCommand:
			err = ex.CopyBuffer(c)
		case BarrierCommand:
			err = ex.Barrier(c)
		case BeginPassCommand:
			err = ex.BeginPass(c)
		case SetViewportCommand:
			err = ex.SetViewport(c)
		case SetPipelineCommand:
			err = ex.SetPipeline(c)
		case SetBindGroupCommand:
			err = ex.SetBindGroup(c)
		case SetVertexBufferCommand:
			err = ex.SetVertexBuffer(c)
		case PushConstantsCommand:
			err = ex.PushConstants(c)
		case DrawCommand:
			err = ex.Draw(c)
		case EndPassCommand:
			err = ex.EndPass()
		}
		if err != nil {
			return fmt.Errorf("%s: command %d (%s): %w", r.label, i, cmd.Type(), err)
		}
	}
	return nil
}
