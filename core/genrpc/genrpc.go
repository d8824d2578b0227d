// Package genrpc is the dispatcher side and the server glue of the
// generator gRPC contract in core/grpc/gen.
package genrpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/you-humble/meshbatch/core/domain"
	generatorpb "github.com/you-humble/meshbatch/core/grpc/gen"
)

type Request struct {
	JobID    string
	ItemKey  string
	Filename string
	// Input is the file store name of the source image.
	Input  string
	Params map[string]string
}

// Server is implemented by the generation backend. progress may be called
// any number of times before Generate returns the artifact names.
type Server interface {
	Generate(ctx context.Context, req Request, progress func(percent int) error) ([]string, error)
}

func Register(s grpc.ServiceRegistrar, srv Server) {
	generatorpb.RegisterGeneratorServiceServer(s, &service{srv: srv})
}

type service struct {
	generatorpb.UnimplementedGeneratorServiceServer
	srv Server
}

func (s *service) Generate(in *generatorpb.GenerateRequest, stream grpc.ServerStreamingServer[generatorpb.GenerateUpdate]) error {
	req, err := fromProto(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	artifacts, err := s.srv.Generate(stream.Context(), req, func(percent int) error {
		return stream.Send(&generatorpb.GenerateUpdate{Progress: int32(percent)})
	})
	if err != nil {
		return err
	}

	return stream.Send(&generatorpb.GenerateUpdate{Progress: 100, Done: true, Artifacts: artifacts})
}

type Client struct {
	client generatorpb.GeneratorServiceClient
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{client: generatorpb.NewGeneratorServiceClient(cc)}
}

// Generate runs one remote generation and returns the artifact names.
// Failures the remote side may recover from are marked transient.
func (c *Client) Generate(ctx context.Context, req Request, onProgress func(percent int)) ([]string, error) {
	stream, err := c.client.Generate(ctx, toProto(req))
	if err != nil {
		return nil, classify(err)
	}

	for {
		u, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil, domain.Transient(errors.New("generator closed the stream without a result"))
		}
		if err != nil {
			return nil, classify(err)
		}

		if u.GetDone() {
			return u.GetArtifacts(), nil
		}
		if onProgress != nil {
			onProgress(int(u.GetProgress()))
		}
	}
}

func classify(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.DeadlineExceeded:
		return domain.Transient(fmt.Errorf("generator: %w", err))
	default:
		return fmt.Errorf("generator: %w", err)
	}
}

func toProto(req Request) *generatorpb.GenerateRequest {
	return &generatorpb.GenerateRequest{
		JobId:    req.JobID,
		ItemKey:  req.ItemKey,
		Filename: req.Filename,
		Input:    req.Input,
		Params:   req.Params,
	}
}

func fromProto(in *generatorpb.GenerateRequest) (Request, error) {
	req := Request{
		JobID:    in.GetJobId(),
		ItemKey:  in.GetItemKey(),
		Filename: in.GetFilename(),
		Input:    in.GetInput(),
		Params:   in.GetParams(),
	}
	if req.JobID == "" || req.ItemKey == "" || req.Input == "" {
		return req, errors.New("job_id, item_key and input are required")
	}
	return req, nil
}
