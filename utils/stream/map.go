package stream

// Map transforms each element of the source stream.
// If fn returns an error the stream ends and Error()
// reports it.
func Map(fn func(value interface{}) (interface{}, error)) Processor {
	return func(stream Stream) Stream {
		return &mappedStream{Stream: stream, fn: fn}
	}
}

type mappedStream struct {
	Stream
	fn    func(value interface{}) (interface{}, error)
	value interface{}
	err   error
}

func (stream *mappedStream) Next() bool {
	if stream.err != nil || !stream.Stream.Next() {
		stream.value = nil

		return false
	}

	stream.value, stream.err = stream.fn(stream.Stream.Value())

	if stream.err != nil {
		stream.value = nil

		return false
	}

	return true
}

func (stream *mappedStream) Value() interface{} {
	return stream.value
}

func (stream *mappedStream) Error() error {
	if stream.err != nil {
		return stream.err
	}

	return stream.Stream.Error()
}
