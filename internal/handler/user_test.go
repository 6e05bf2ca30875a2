package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	v1 "vdisphere/api/v1"
	"vdisphere/internal/middleware"
	"vdisphere/pkg/jwt"
	"vdisphere/pkg/log"
	mock_service "vdisphere/test/mocks/service"

	"github.com/gavv/httpexpect/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newUserTestServer(t *testing.T, svc *mock_service.MockUserService) (*httptest.Server, *jwt.JWT) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := &log.Logger{Logger: zap.NewNop()}
	conf := viper.New()
	conf.Set("security.jwt.key", "unit-test-key")
	j := jwt.NewJwt(conf)

	h := NewUserHandler(NewHandler(logger), svc)
	r := gin.New()
	r.POST("/login", h.Login)
	r.POST("/register", h.Register)
	auth := r.Group("/", middleware.StrictAuth(j, logger))
	auth.GET("/user", h.GetProfile)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, j
}

func TestLoginIssuesToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mock_service.NewMockUserService(ctrl)
	svc.EXPECT().Login(gomock.Any(), gomock.Any()).Return("the-token", nil)

	srv, _ := newUserTestServer(t, svc)
	e := httpexpect.Default(t, srv.URL)

	obj := e.POST("/login").
		WithJSON(v1.LoginRequest{Email: "alice@example.com", Password: "123456"}).
		Expect().Status(http.StatusOK).
		JSON().Object()
	obj.Value("code").Number().IsEqual(0)
	obj.Value("data").Object().Value("accessToken").String().IsEqual("the-token")
}

func TestLoginRejectsMalformedPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// binding fails before the service is reached
	svc := mock_service.NewMockUserService(ctrl)

	srv, _ := newUserTestServer(t, svc)
	e := httpexpect.Default(t, srv.URL)

	e.POST("/login").
		WithJSON(map[string]string{"email": "not-an-email"}).
		Expect().Status(http.StatusBadRequest).
		JSON().Object().Value("code").Number().IsEqual(400)
}

func TestGetProfileRequiresToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mock_service.NewMockUserService(ctrl)

	srv, _ := newUserTestServer(t, svc)
	e := httpexpect.Default(t, srv.URL)

	e.GET("/user").
		Expect().Status(http.StatusUnauthorized).
		JSON().Object().Value("code").Number().IsEqual(401)
}

func TestGetProfileReturnsTokenOwner(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mock_service.NewMockUserService(ctrl)
	svc.EXPECT().GetProfile(gomock.Any(), "u-123").Return(&v1.GetProfileResponseData{
		UserId:   "u-123",
		Nickname: "alice",
		Email:    "alice@example.com",
	}, nil)

	srv, j := newUserTestServer(t, svc)
	token, err := j.GenToken("u-123", false, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("GenToken: %v", err)
	}

	e := httpexpect.Default(t, srv.URL)
	obj := e.GET("/user").
		WithHeader("Authorization", "Bearer "+token).
		Expect().Status(http.StatusOK).
		JSON().Object()
	obj.Value("data").Object().Value("userId").String().IsEqual("u-123")
	obj.Value("data").Object().Value("nickname").String().IsEqual("alice")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := mock_service.NewMockUserService(ctrl)
	svc.EXPECT().Register(gomock.Any(), gomock.Any()).Return(v1.ErrEmailAlreadyUse)

	srv, _ := newUserTestServer(t, svc)
	e := httpexpect.Default(t, srv.URL)

	e.POST("/register").
		WithJSON(v1.RegisterRequest{Nickname: "alice", Email: "alice@example.com", Password: "123456"}).
		Expect().Status(http.StatusInternalServerError).
		JSON().Object().Value("code").Number().IsEqual(1001)
}
