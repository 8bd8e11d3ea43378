package stream

// Skip drops the first n elements of the source stream
func Skip(n int) Processor {
	return func(stream Stream) Stream {
		return &skippedStream{stream, n}
	}
}

type skippedStream struct {
	Stream
	remaining int
}

func (stream *skippedStream) Next() bool {
	for ; stream.remaining > 0; stream.remaining-- {
		if !stream.Stream.Next() {
			stream.remaining = 0

			return false
		}
	}

	return stream.Stream.Next()
}
