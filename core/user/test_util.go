package user

import (
	"github.com/trezcool/walimu/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose side effects run synchronously,
// for use in handler tests.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	initTokenGen(conf)
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			conf:    conf,
		},
	}
}
