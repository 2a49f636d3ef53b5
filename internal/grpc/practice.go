package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"cadence/practice/internal/access"
	"cadence/practice/internal/db"
	"cadence/practice/internal/model"
	"cadence/practice/internal/stats"
)

const (
	serviceName                  = "practice.v1.PracticeQueryService"
	getStudentStatsMethod        = "/" + serviceName + "/GetStudentStats"
	validateTeacherStudentMethod = "/" + serviceName + "/ValidateTeacherStudent"
)

// PracticeQueryServer answers read-only queries from peer services.
type PracticeQueryServer interface {
	GetStudentStats(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ValidateTeacherStudent(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
}

var PracticeQueryServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PracticeQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStudentStats", Handler: getStudentStatsHandler},
		{MethodName: "ValidateTeacherStudent", Handler: validateTeacherStudentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "practice/v1/practice.proto",
}

func RegisterPracticeQueryServer(s grpc.ServiceRegistrar, srv PracticeQueryServer) {
	s.RegisterService(&PracticeQueryServiceDesc, srv)
}

// NewServer builds the gRPC server for the practice query API. Every call must
// carry serviceToken; an empty token is an error.
func NewServer(store *db.Store, serviceToken string, opts ...QueryOption) (*grpc.Server, error) {
	interceptor, err := NewServiceAuthUnaryInterceptor(serviceToken)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	RegisterPracticeQueryServer(srv, NewQueryServer(store, opts...))
	return srv, nil
}

func getStudentStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PracticeQueryServer).GetStudentStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStudentStatsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PracticeQueryServer).GetStudentStats(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func validateTeacherStudentHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PracticeQueryServer).ValidateTeacherStudent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: validateTeacherStudentMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PracticeQueryServer).ValidateTeacherStudent(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// QueryServer implements PracticeQueryServer over the practice store.
type QueryServer struct {
	store    *db.Store
	now      func() time.Time
	location *time.Location
}

type QueryOption func(*QueryServer)

// WithClock fixes the instant and zone used for week and streak windows.
func WithClock(now func() time.Time, loc *time.Location) QueryOption {
	return func(s *QueryServer) {
		s.now = now
		s.location = loc
	}
}

func NewQueryServer(store *db.Store, opts ...QueryOption) *QueryServer {
	s := &QueryServer{store: store, now: time.Now, location: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *QueryServer) GetStudentStats(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	studentID := strings.TrimSpace(req.GetValue())
	if studentID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing_student_id")
	}
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessionsByStudent(ctx, student.ID, db.SessionFilter{
		Status:      model.SessionCompleted,
		WithDetails: true,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "server_error")
	}
	summary := stats.Aggregate(sessions, stats.Options{
		Now:         s.now(),
		Location:    s.location,
		Timestamp:   stats.ByDate,
		Granularity: stats.PerSegment,
	})
	out, err := structpb.NewStruct(map[string]interface{}{
		"studentId":              student.ID,
		"totalSessions":          summary.TotalSessions,
		"totalPracticeTime":      summary.TotalPracticeTime,
		"totalMinutes":           summary.TotalMinutes,
		"totalSegments":          summary.TotalSegments,
		"analyzedCount":          summary.AnalyzedCount,
		"averageSessionDuration": summary.AverageSessionDuration,
		"sessionsThisWeek":       summary.SessionsThisWeek,
		"streak":                 summary.Streak,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "server_error")
	}
	return out, nil
}

// ValidateTeacherStudent reports whether teacher_id supervises student_id.
// Unknown ids yield false rather than an error.
func (s *QueryServer) ValidateTeacherStudent(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	fields := req.GetFields()
	teacherID := strings.TrimSpace(fields["teacher_id"].GetStringValue())
	studentID := strings.TrimSpace(fields["student_id"].GetStringValue())
	if teacherID == "" || studentID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing_ids")
	}
	student, err := s.store.GetAccountByID(ctx, studentID)
	if errors.Is(err, db.ErrNotFound) {
		return wrapperspb.Bool(false), nil
	}
	if err != nil {
		return nil, status.Error(codes.Internal, "server_error")
	}
	caller := access.Caller{ID: teacherID, Role: model.RoleTeacher}
	return wrapperspb.Bool(access.CanMutateStudentRoster(caller, student)), nil
}

func (s *QueryServer) loadStudent(ctx context.Context, id string) (model.Account, error) {
	account, err := s.store.GetAccountByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) || (err == nil && account.Role != model.RoleStudent) {
		return model.Account{}, status.Error(codes.NotFound, "student_not_found")
	}
	if err != nil {
		return model.Account{}, status.Error(codes.Internal, "server_error")
	}
	return account, nil
}

// PracticeQueryClient calls PracticeQueryService on a peer.
type PracticeQueryClient struct {
	cc grpc.ClientConnInterface
}

func NewPracticeQueryClient(cc grpc.ClientConnInterface) *PracticeQueryClient {
	return &PracticeQueryClient{cc: cc}
}

func (c *PracticeQueryClient) GetStudentStats(ctx context.Context, studentID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStudentStatsMethod, wrapperspb.String(studentID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PracticeQueryClient) ValidateTeacherStudent(ctx context.Context, teacherID, studentID string, opts ...grpc.CallOption) (bool, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"teacher_id": structpb.NewStringValue(teacherID),
		"student_id": structpb.NewStringValue(studentID),
	}}
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, validateTeacherStudentMethod, in, out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}
