package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"giftspa/server/internal/services"
)

// CertificateServiceName полное имя gRPC сервиса для касс филиалов
const CertificateServiceName = "giftspa.CertificateService"

type grpcActorKey struct{}

// CertificateServer интерфейс сервиса (запрос и ответ как google.protobuf.Struct)
type CertificateServer interface {
	CheckCertificate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RedeemCertificate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var certificateServiceDesc = grpc.ServiceDesc{
	ServiceName: CertificateServiceName,
	HandlerType: (*CertificateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckCertificate", Handler: checkCertificateHandler},
		{MethodName: "RedeemCertificate", Handler: redeemCertificateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "giftspa/certificate.proto",
}

func checkCertificateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CertificateServer).CheckCertificate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + CertificateServiceName + "/CheckCertificate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CertificateServer).CheckCertificate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func redeemCertificateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CertificateServer).RedeemCertificate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + CertificateServiceName + "/RedeemCertificate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CertificateServer).RedeemCertificate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CertificateGRPCServer проверка и погашение сертификатов на кассе
type CertificateGRPCServer struct {
	certificates *services.CertificateService
	auth         *services.AuthService
}

func NewCertificateGRPCServer(certificates *services.CertificateService, auth *services.AuthService) *CertificateGRPCServer {
	return &CertificateGRPCServer{certificates: certificates, auth: auth}
}

// NewGRPCServer собирает grpc.Server: health + сервис сертификатов за JWT интерсептором
func NewGRPCServer(srv *CertificateGRPCServer) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(grpc.UnaryInterceptor(srv.AuthInterceptor()))

	server.RegisterService(&certificateServiceDesc, srv)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(CertificateServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return server, healthServer
}

// AuthInterceptor проверяет Bearer токен в metadata "authorization". Health без авторизации
func (s *CertificateGRPCServer) AuthInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization token not provided")
		}
		tokenStr := strings.TrimSpace(values[0])
		if len(tokenStr) > 7 && strings.EqualFold(tokenStr[:7], "bearer ") {
			tokenStr = strings.TrimSpace(tokenStr[7:])
		}

		claims, err := s.auth.ParseToken(tokenStr)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		return handler(context.WithValue(ctx, grpcActorKey{}, services.ActorFromClaims(claims)), req)
	}
}

func (s *CertificateGRPCServer) CheckCertificate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, _ := ctx.Value(grpcActorKey{}).(services.Actor)
	code := req.GetFields()["code"].GetStringValue()
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "code is required")
	}

	check, err := s.certificates.Check(ctx, code, actor)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(check)
}

func (s *CertificateGRPCServer) RedeemCertificate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, _ := ctx.Value(grpcActorKey{}).(services.Actor)
	code := req.GetFields()["code"].GetStringValue()
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "code is required")
	}

	check, err := s.certificates.Redeem(ctx, code, actor)
	if err != nil {
		return nil, grpcError(err)
	}
	log.Printf("✅ Сертификат %s погашен (%s)", check.Code, actor.Label())
	return toStruct(check)
}

func grpcError(err error) error {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return status.Error(codes.FailedPrecondition, validationErr.Message)
	case errors.Is(err, services.ErrValidation):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, services.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, services.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	default:
		log.Printf("❌ gRPC: %v", err)
		return status.Error(codes.Internal, "internal error")
	}
}

// toStruct JSON round-trip в google.protobuf.Struct
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("struct: %v", err))
	}
	return s, nil
}
