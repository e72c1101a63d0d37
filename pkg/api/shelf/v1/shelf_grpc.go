// Package shelfv1 defines the shelfd gRPC service.
//
// Messages are protobuf well-known types: requests carry a single scalar
// wrapper and structured replies travel as google.protobuf.Struct values
// holding the JSON form of the types in wire.go.
package shelfv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "shelf.v1.ShelfDaemon"

// Full method names.
const (
	ShelfDaemon_Scan_FullMethodName           = "/shelf.v1.ShelfDaemon/Scan"
	ShelfDaemon_ListGames_FullMethodName      = "/shelf.v1.ShelfDaemon/ListGames"
	ShelfDaemon_ListFiles_FullMethodName      = "/shelf.v1.ShelfDaemon/ListFiles"
	ShelfDaemon_Download_FullMethodName       = "/shelf.v1.ShelfDaemon/Download"
	ShelfDaemon_GetImage_FullMethodName       = "/shelf.v1.ShelfDaemon/GetImage"
	ShelfDaemon_DownloadImages_FullMethodName = "/shelf.v1.ShelfDaemon/DownloadImages"
	ShelfDaemon_WatchLibrary_FullMethodName   = "/shelf.v1.ShelfDaemon/WatchLibrary"
	ShelfDaemon_Forget_FullMethodName         = "/shelf.v1.ShelfDaemon/Forget"
	ShelfDaemon_Unblacklist_FullMethodName    = "/shelf.v1.ShelfDaemon/Unblacklist"
	ShelfDaemon_Prune_FullMethodName          = "/shelf.v1.ShelfDaemon/Prune"
	ShelfDaemon_Status_FullMethodName         = "/shelf.v1.ShelfDaemon/Status"
	ShelfDaemon_Shutdown_FullMethodName       = "/shelf.v1.ShelfDaemon/Shutdown"
)

// Download response header keys.
const (
	HeaderFilename = "shelf-filename"
	HeaderSize     = "shelf-size"
)

// ShelfDaemonServer is the server API for the ShelfDaemon service.
type ShelfDaemonServer interface {
	// Scan runs one library scan pass and returns a ScanSummary.
	Scan(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// ListGames returns a Library; the flag includes the blacklist.
	ListGames(context.Context, *wrapperspb.BoolValue) (*structpb.Struct, error)
	// ListFiles returns the candidate file names under the root.
	ListFiles(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	// Download streams the payload of the game stored at the given path.
	Download(*wrapperspb.StringValue, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
	// GetImage returns a cached cover image.
	GetImage(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	// DownloadImages fills the image cache and returns an ImagesReport.
	DownloadImages(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// WatchLibrary streams library Events.
	WatchLibrary(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
	// Forget removes a detected game.
	Forget(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	// Unblacklist removes a blacklist entry.
	Unblacklist(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	// Prune removes every game and blacklist entry under a directory and
	// returns the number of records removed.
	Prune(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	// Status returns daemon Status.
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Shutdown asks the daemon to exit.
	Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// RegisterShelfDaemonServer registers srv on s.
func RegisterShelfDaemonServer(s grpc.ServiceRegistrar, srv ShelfDaemonServer) {
	s.RegisterService(&ShelfDaemon_ServiceDesc, srv)
}

func unaryHandler[Req, Res any](fullMethod string, call func(ShelfDaemonServer, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ShelfDaemonServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ShelfDaemonServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func _ShelfDaemon_Download_Handler(srv any, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ShelfDaemonServer).Download(m, &grpc.GenericServerStream[wrapperspb.StringValue, wrapperspb.BytesValue]{ServerStream: stream})
}

func _ShelfDaemon_WatchLibrary_Handler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ShelfDaemonServer).WatchLibrary(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// ShelfDaemon_ServiceDesc is the grpc.ServiceDesc for the ShelfDaemon service.
var ShelfDaemon_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ShelfDaemonServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Scan",
			Handler:    unaryHandler(ShelfDaemon_Scan_FullMethodName, ShelfDaemonServer.Scan),
		},
		{
			MethodName: "ListGames",
			Handler:    unaryHandler(ShelfDaemon_ListGames_FullMethodName, ShelfDaemonServer.ListGames),
		},
		{
			MethodName: "ListFiles",
			Handler:    unaryHandler(ShelfDaemon_ListFiles_FullMethodName, ShelfDaemonServer.ListFiles),
		},
		{
			MethodName: "GetImage",
			Handler:    unaryHandler(ShelfDaemon_GetImage_FullMethodName, ShelfDaemonServer.GetImage),
		},
		{
			MethodName: "DownloadImages",
			Handler:    unaryHandler(ShelfDaemon_DownloadImages_FullMethodName, ShelfDaemonServer.DownloadImages),
		},
		{
			MethodName: "Forget",
			Handler:    unaryHandler(ShelfDaemon_Forget_FullMethodName, ShelfDaemonServer.Forget),
		},
		{
			MethodName: "Unblacklist",
			Handler:    unaryHandler(ShelfDaemon_Unblacklist_FullMethodName, ShelfDaemonServer.Unblacklist),
		},
		{
			MethodName: "Prune",
			Handler:    unaryHandler(ShelfDaemon_Prune_FullMethodName, ShelfDaemonServer.Prune),
		},
		{
			MethodName: "Status",
			Handler:    unaryHandler(ShelfDaemon_Status_FullMethodName, ShelfDaemonServer.Status),
		},
		{
			MethodName: "Shutdown",
			Handler:    unaryHandler(ShelfDaemon_Shutdown_FullMethodName, ShelfDaemonServer.Shutdown),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Download",
			Handler:       _ShelfDaemon_Download_Handler,
			ServerStreams: true,
		},
		{
			StreamName:    "WatchLibrary",
			Handler:       _ShelfDaemon_WatchLibrary_Handler,
			ServerStreams: true,
		},
	},
}

// ShelfDaemonClient is the client API for the ShelfDaemon service.
type ShelfDaemonClient interface {
	Scan(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListGames(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListFiles(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Download(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error)
	GetImage(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	DownloadImages(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	WatchLibrary(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
	Forget(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Unblacklist(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Prune(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error)
	Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type shelfDaemonClient struct {
	cc grpc.ClientConnInterface
}

// NewShelfDaemonClient returns a client bound to cc.
func NewShelfDaemonClient(cc grpc.ClientConnInterface) ShelfDaemonClient {
	return &shelfDaemonClient{cc}
}

func invoke[Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	if err := cc.Invoke(ctx, method, in, out, cOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

func serverStream[Req, Res any](ctx context.Context, cc grpc.ClientConnInterface, desc *grpc.StreamDesc, method string, in *Req, opts []grpc.CallOption) (grpc.ServerStreamingClient[Res], error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	stream, err := cc.NewStream(ctx, desc, method, cOpts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Res]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *shelfDaemonClient) Scan(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, ShelfDaemon_Scan_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) ListGames(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, ShelfDaemon_ListGames_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) ListFiles(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, ShelfDaemon_ListFiles_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) Download(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.BytesValue], error) {
	return serverStream[wrapperspb.StringValue, wrapperspb.BytesValue](ctx, c.cc, &ShelfDaemon_ServiceDesc.Streams[0], ShelfDaemon_Download_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) GetImage(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke[wrapperspb.BytesValue](ctx, c.cc, ShelfDaemon_GetImage_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) DownloadImages(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, ShelfDaemon_DownloadImages_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) WatchLibrary(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	return serverStream[emptypb.Empty, structpb.Struct](ctx, c.cc, &ShelfDaemon_ServiceDesc.Streams[1], ShelfDaemon_WatchLibrary_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) Forget(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, ShelfDaemon_Forget_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) Unblacklist(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, ShelfDaemon_Unblacklist_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) Prune(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	return invoke[wrapperspb.Int64Value](ctx, c.cc, ShelfDaemon_Prune_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, ShelfDaemon_Status_FullMethodName, in, opts)
}

func (c *shelfDaemonClient) Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, ShelfDaemon_Shutdown_FullMethodName, in, opts)
}
