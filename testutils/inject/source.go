package inject

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"go.viam.com/peoplecount/source"
)

// Reader is an injected source.Reader.
type Reader struct {
	ReadFunc  func(ctx context.Context) (image.Image, error)
	CloseFunc func(ctx context.Context) error
}

// Read calls the injected Read.
func (r *Reader) Read(ctx context.Context) (image.Image, error) {
	if r.ReadFunc == nil {
		return nil, errors.New("Read not injected")
	}
	return r.ReadFunc(ctx)
}

// Close calls the injected Close, if any.
func (r *Reader) Close(ctx context.Context) error {
	if r.CloseFunc == nil {
		return nil
	}
	return r.CloseFunc(ctx)
}

// Source is an injected source.Source.
type Source struct {
	source.Source
	NextFunc  func(ctx context.Context) (source.Frame, error)
	CloseFunc func(ctx context.Context) error
}

// Next calls the injected Next or the real version.
func (s *Source) Next(ctx context.Context) (source.Frame, error) {
	if s.NextFunc == nil {
		return s.Source.Next(ctx)
	}
	return s.NextFunc(ctx)
}

// Close calls the injected Close or the real version.
func (s *Source) Close(ctx context.Context) error {
	if s.CloseFunc == nil {
		if s.Source == nil {
			return nil
		}
		return s.Source.Close(ctx)
	}
	return s.CloseFunc(ctx)
}
