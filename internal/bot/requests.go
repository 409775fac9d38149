package bot

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
)

// Command inputs. The option tag doubles as the field name in messages.

type addListingRequest struct {
	Name        string `option:"name" validate:"required,max=100"`
	Quantity    int64  `option:"quantity" validate:"gte=1"`
	Price       int64  `option:"price" validate:"gte=0"`
	Description string `option:"description" validate:"max=500"`
}

type updateListingRequest struct {
	ItemID   int64  `option:"item_id" validate:"gte=1"`
	Quantity *int64 `option:"quantity" validate:"omitempty,gte=0"`
	Price    *int64 `option:"price" validate:"omitempty,gte=0"`
}

type mergeRequest struct {
	Name string `option:"name" validate:"required,max=100"`
}

type itemRequest struct {
	ItemID int64 `option:"item_id" validate:"gte=1"`
}

type placeOrderRequest struct {
	ItemID       int64  `option:"item_id" validate:"gte=1"`
	Quantity     int64  `option:"quantity" validate:"gte=1"`
	Location     string `option:"location" validate:"required,max=200"`
	DeliveryTime string `option:"delivery_time" validate:"required,max=200"`
}

type orderRequest struct {
	OrderID int64 `option:"order_id" validate:"gte=1"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if tag := f.Tag.Get("option"); tag != "" {
			return tag
		}
		return f.Name
	})
	return v
}

func (a *App) validate(req any) error {
	if err := a.validator.Struct(req); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// formatValidationErrors reports the first failing field; a chat reply has
// room for one message.
func formatValidationErrors(err error) *pkgerrors.Error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid input")
	}
	details := map[string]string{}
	for _, fe := range errs {
		details[fe.Field()] = validationMessage(fe)
	}
	first := errs[0]
	msg := fmt.Sprintf("%s %s", strings.ReplaceAll(first.Field(), "_", " "), validationMessage(first))
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	}
	return "is invalid"
}
