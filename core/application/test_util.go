package application

import (
	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/user"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose side effects run synchronously,
// for use in handler tests.
func NewServiceMock(repo Repository, usrSvc user.Service, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{
		service: service{
			repo:    repo,
			usrSvc:  usrSvc,
			mailSvc: mailSvc,
			conf:    conf,
		},
	}
}
