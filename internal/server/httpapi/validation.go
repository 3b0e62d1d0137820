package httpapi

import (
	"errors"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/server/passwords"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var passwordRuleOnce sync.Once

// registerPasswordRule adds the "password" binding tag, backed by
// passwords.CheckStrength, to gin's validator.
func registerPasswordRule() {
	passwordRuleOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
			return passwords.CheckStrength(fl.Field().String()) == nil
		})
	})
}

// bindMessage turns a binding error into a client message. Password policy
// violations are reported with the policy's own wording.
func bindMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for _, fe := range ve {
		if fe.Tag() != "password" {
			continue
		}
		if p, ok := fe.Value().(string); ok {
			if perr := passwords.CheckStrength(p); perr != nil {
				return perr.Error()
			}
		}
	}
	return err.Error()
}
