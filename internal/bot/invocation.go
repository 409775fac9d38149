package bot

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
)

// Invocation is a slash command after routing: who ran it and with which
// option values.
type Invocation struct {
	Command  string
	UserID   string
	Username string
	GuildID  string
	IsAdmin  bool
	options  map[string]*discordgo.ApplicationCommandInteractionDataOption
}

// commandKey flattens "/supplier add" into "supplier add" and returns the
// options that belong to the leaf command.
func commandKey(data discordgo.ApplicationCommandInteractionData) (string, []*discordgo.ApplicationCommandInteractionDataOption) {
	key := data.Name
	opts := data.Options
	for len(opts) == 1 && (opts[0].Type == discordgo.ApplicationCommandOptionSubCommand ||
		opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup) {
		key += " " + opts[0].Name
		opts = opts[0].Options
	}
	return key, opts
}

func newInvocation(key string, user *discordgo.User, member *discordgo.Member, guildID string, opts []*discordgo.ApplicationCommandInteractionDataOption) *Invocation {
	inv := &Invocation{
		Command: key,
		GuildID: guildID,
		options: make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts)),
	}
	if user != nil {
		inv.UserID = user.ID
		inv.Username = displayName(user, member)
	}
	if member != nil {
		inv.IsAdmin = member.Permissions&discordgo.PermissionAdministrator != 0
	}
	for _, opt := range opts {
		inv.options[opt.Name] = opt
	}
	return inv
}

func displayName(user *discordgo.User, member *discordgo.Member) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}

// bind copies option values into the fields of dest tagged `option:"name"`.
// Missing options leave the field at its zero value (nil for pointers).
func (inv *Invocation) bind(dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bind target must be a struct pointer, got %T", dest)
	}
	rv = rv.Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		name := rt.Field(i).Tag.Get("option")
		if name == "" {
			continue
		}
		opt, ok := inv.options[name]
		if !ok || opt.Value == nil {
			continue
		}
		if err := setOption(rv.Field(i), opt.Value); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("%s is invalid", strings.ReplaceAll(name, "_", " ")))
		}
	}
	return nil
}

func setOption(field reflect.Value, value any) error {
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := setOption(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected text, got %T", value)
		}
		field.SetString(strings.TrimSpace(s))
	case reflect.Int, reflect.Int64:
		n, err := toInt64(value)
		if err != nil {
			return err
		}
		field.SetInt(n)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// toInt64 accepts the shapes integer options arrive in: JSON numbers decode
// as float64, ids and large values may arrive as strings.
func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("expected a whole number, got %v", v)
		}
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	}
	return 0, fmt.Errorf("expected a number, got %T", value)
}
