package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type traceExecutor struct {
	types  []CommandType
	failAt CommandType
}

func (e *traceExecutor) note(t CommandType) error {
	e.types = append(e.types, t)
	if t == e.failAt {
		return ErrStaleBinding
	}
	return nil
}

func (e *traceExecutor) CopyBuffer(CopyBufferCommand) error     { return e.note(CmdCopyBuffer) }
func (e *traceExecutor) Barrier(BarrierCommand) error           { return e.note(CmdBarrier) }
func (e *traceExecutor) BeginPass(BeginPassCommand) error       { return e.note(CmdBeginPass) }
func (e *traceExecutor) SetViewport(SetViewportCommand) error   { return e.note(CmdSetViewport) }
func (e *traceExecutor) SetPipeline(SetPipelineCommand) error   { return e.note(CmdSetPipeline) }
func (e *traceExecutor) SetBindGroup(SetBindGroupCommand) error { return e.note(CmdSetBindGroup) }
func (e *traceExecutor) SetVertexBuffer(SetVertexBufferCommand) error {
	return e.note(CmdSetVertexBuffer)
}
func (e *traceExecutor) PushConstants(PushConstantsCommand) error { return e.note(CmdPushConstants) }
func (e *traceExecutor) Draw(DrawCommand) error                   { return e.note(CmdDraw) }
func (e *traceExecutor) EndPass() error                           { return e.note(CmdEndPass) }

func recordFrame(r *Recorder) {
	r.CopyBuffer(Buffer{}, Buffer{}, 16)
	r.Barrier(StageTransfer, StageVertexInput)
	r.BeginPass(Target{}, Color{}, 1)
	r.SetPipeline(Pipeline{})
	r.SetVertexBuffer(Buffer{}, 0)
	r.Draw(3, 1, 0, 0)
	r.EndPass()
}

func TestRecorderPlaybackOrder(t *testing.T) {
	r := NewRecorder("frame")
	recordFrame(r)

	rec, err := r.Finish()
	require.NoError(t, err)

	ex := &traceExecutor{failAt: 255}
	require.NoError(t, rec.Playback(ex))
	assert.Equal(t, []CommandType{
		CmdCopyBuffer, CmdBarrier, CmdBeginPass, CmdSetPipeline,
		CmdSetVertexBuffer, CmdDraw, CmdEndPass,
	}, ex.types)
}

func TestRecorderMisuse(t *testing.T) {
	tests := []struct {
		name   string
		record func(r *Recorder)
		want   error
	}{
		{"draw outside pass", func(r *Recorder) { r.Draw(3, 1, 0, 0) }, ErrNoPass},
		{"end without begin", func(r *Recorder) { r.EndPass() }, ErrNoPass},
		{"nested pass", func(r *Recorder) {
			r.BeginPass(Target{}, Color{}, 1)
			r.BeginPass(Target{}, Color{}, 1)
		}, ErrPassOpen},
		{"copy inside pass", func(r *Recorder) {
			r.BeginPass(Target{}, Color{}, 1)
			r.CopyBuffer(Buffer{}, Buffer{}, 4)
			r.EndPass()
		}, ErrPassOpen},
		{"pass left open", func(r *Recorder) { r.BeginPass(Target{}, Color{}, 1) }, ErrPassOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder("misuse")
			tt.record(r)
			_, err := r.Finish()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecorderReset(t *testing.T) {
	r := NewRecorder("frame")
	r.Draw(3, 1, 0, 0)
	_, err := r.Finish()
	require.Error(t, err)

	r.Reset()
	assert.Equal(t, 0, r.Len())
	recordFrame(r)
	_, err = r.Finish()
	assert.NoError(t, err)
}

func TestPlaybackStopsAtError(t *testing.T) {
	r := NewRecorder("frame")
	recordFrame(r)
	rec, err := r.Finish()
	require.NoError(t, err)

	ex := &traceExecutor{failAt: CmdDraw}
	err = rec.Playback(ex)
	assert.True(t, errors.Is(err, ErrStaleBinding))
	assert.Equal(t, CmdDraw, ex.types[len(ex.types)-1])
	assert.Contains(t, err.Error(), "Draw")
}

func TestPushConstantsCopied(t *testing.T) {
	r := NewRecorder("frame")
	data := []byte{1, 2, 3, 4}
	r.BeginPass(Target{}, Color{}, 1)
	r.PushConstants(data)
	r.EndPass()
	data[0] = 9

	rec, err := r.Finish()
	require.NoError(t, err)
	pc := rec.Commands()[1].(PushConstantsCommand)
	assert.Equal(t, byte(1), pc.Data[0])
}

func TestCommandTypeString(t *testing.T) {
	assert.Equal(t, "CopyBuffer", CmdCopyBuffer.String())
	assert.Equal(t, "EndPass", CmdEndPass.String())
	assert.Equal(t, "Unknown", CommandType(200).String())
}
