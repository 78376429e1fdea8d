package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"nested-scan-go/query"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/flight"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server answers Flight DoGet calls. The ticket is a SQL statement run
// against the session; the result streams back as IPC record batches.
type Server struct {
	flight.BaseFlightServer

	session   *query.Session
	logger    *slog.Logger
	batchSize uint16
}

func New(session *query.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		session:   session,
		logger:    logger,
		batchSize: uint16(session.Options().BatchSize),
	}
}

func (s *Server) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	sql := string(tkt.GetTicket())
	s.logger.Debug("DoGet called", slog.String("sql", sql))
	if sql == "" {
		return status.Error(codes.InvalidArgument, "ticket holds no statement")
	}

	op, err := s.session.Query(stream.Context(), sql)
	if err != nil {
		s.logger.Error("statement rejected", slog.String("sql", sql), slog.Any("error", err))
		if errors.Is(err, query.ErrExecutionFailure) {
			return status.Errorf(codes.InvalidArgument, "%v", err)
		}
		return status.Errorf(codes.Internal, "%v", err)
	}
	defer op.Close()

	schema := op.Schema()
	w := flight.NewRecordWriter(stream, ipc.WithSchema(schema))
	defer w.Close()

	var rows uint64
	for {
		if err := stream.Context().Err(); err != nil {
			return status.FromContextError(err).Err()
		}
		batch, err := op.Next(s.batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return status.Errorf(codes.Internal, "execute: %v", err)
		}
		// the writer checks every record against its schema, metadata included
		rec := array.NewRecord(schema, batch.Columns, int64(batch.RowCount))
		err = w.Write(rec)
		rec.Release()
		rows += batch.RowCount
		batch.Release()
		if err != nil {
			return status.Errorf(codes.Internal, "write: %v", err)
		}
	}
	s.logger.Debug("DoGet finished", slog.String("sql", sql), slog.Uint64("rows", rows))
	return nil
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	flight.RegisterFlightServiceServer(grpcServer, s)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			grpcServer.GracefulStop()
		case <-done:
		}
	}()

	s.logger.Info("flight server listening", slog.String("addr", lis.Addr().String()))
	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
