package testutil

import "io"

// Pipes are two crossed in-memory pipes: what one side writes the other
// reads. They stand in for a parent process and its child's stdio.
type Pipes struct {
	ClientReader *io.PipeReader
	ClientWriter *io.PipeWriter
	ServerReader *io.PipeReader
	ServerWriter *io.PipeWriter
}

// NewPipes creates a connected pair
func NewPipes() *Pipes {
	serverR, clientW := io.Pipe()
	clientR, serverW := io.Pipe()
	return &Pipes{
		ClientReader: clientR,
		ClientWriter: clientW,
		ServerReader: serverR,
		ServerWriter: serverW,
	}
}

// Close closes all four ends
func (p *Pipes) Close() {
	_ = p.ClientReader.Close()
	_ = p.ClientWriter.Close()
	_ = p.ServerReader.Close()
	_ = p.ServerWriter.Close()
}
