package commands

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// UsageError is returned when a message could not be turned into a call.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageError(format string, args ...interface{}) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

type Command struct {
	Name        string
	Aliases     []string
	ArgFormat   string
	Description string
	Callback    interface{}
}

func (cmd *Command) String() string {
	if cmd.ArgFormat == "" {
		return "#" + cmd.Name
	}
	return fmt.Sprintf("#%s %s", cmd.Name, cmd.ArgFormat)
}

func (cmd *Command) Detailed() string {
	aliases := ""
	if len(cmd.Aliases) > 0 {
		aliases = fmt.Sprintf(" (alias %s)", strings.Join(cmd.Aliases, ", "))
	}
	return fmt.Sprintf("%s%s: %s", cmd.String(), aliases, cmd.Description)
}

// CommandGroup dispatches text commands to typed callbacks. Callback
// parameters are filled from the command's arguments in order: ints, floats,
// bools and strings are required, pointers to them are optional, and a
// trailing slice of strings or ints takes whatever is left. A parameter of
// type User receives the caller.
type CommandGroup[User any] struct {
	// Optional leading word, e.g. "#avalon vote yes"
	namespace string
	commands  map[string]*Command
	// Registration order, for help output
	order []*Command
}

func NewCommandGroup[User any](namespace string) *CommandGroup[User] {
	return &CommandGroup[User]{
		namespace: namespace,
		commands:  make(map[string]*Command),
	}
}

func isScalar(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.String, reflect.Bool, reflect.Float64:
		return true
	}
	return false
}

func (c *CommandGroup[User]) validateCallback(callback interface{}) error {
	type_ := reflect.TypeOf(callback)

	if type_ == nil || type_.Kind() != reflect.Func {
		return fmt.Errorf("callback must be a function")
	}

	if type_.NumOut() > 1 {
		return fmt.Errorf("callback can only have a single return value")
	}

	if type_.NumOut() == 1 {
		returnType := type_.Out(0)
		returnTypeValue := reflect.New(returnType)
		if _, ok := returnTypeValue.Interface().(*error); !ok {
			return fmt.Errorf("callback return type must be error")
		}
	}

	haveOptional := false
	haveRest := false

	var u User
	userType := reflect.TypeOf(u)
	for i := 0; i < type_.NumIn(); i++ {
		argType := type_.In(i)

		if argType == userType {
			continue
		}

		if haveRest {
			return fmt.Errorf("slice parameter must come last")
		}

		switch argType.Kind() {
		case reflect.Slice:
			switch argType.Elem().Kind() {
			case reflect.String, reflect.Int:
			default:
				return fmt.Errorf("slice parameter %s can only be string or int", argType.String())
			}
			haveRest = true
		case reflect.Int, reflect.String, reflect.Bool, reflect.Float64:
			if haveOptional {
				return fmt.Errorf("required parameter cannot follow optional")
			}
		case reflect.Pointer:
			haveOptional = true

			elemType := argType.Elem()
			switch elemType.Kind() {
			// String omitted intentionally
			case reflect.Int, reflect.Bool, reflect.Float64:
				continue
			default:
				return fmt.Errorf("invalid optional callback parameter type %s", elemType.String())
			}
		default:
			return fmt.Errorf("invalid callback parameter type %s", argType.String())
		}
	}

	return nil
}

func (c *CommandGroup[User]) Register(command Command) error {
	err := c.validateCallback(command.Callback)
	if err != nil {
		return err
	}

	for _, name := range append([]string{command.Name}, command.Aliases...) {
		if _, ok := c.commands[name]; ok {
			return fmt.Errorf("command %s is already registered", name)
		}
	}

	c.commands[command.Name] = &command
	for _, alias := range command.Aliases {
		c.commands[alias] = &command
	}
	c.order = append(c.order, &command)

	return nil
}

func (c *CommandGroup[User]) Help() string {
	lines := make([]string, 0, len(c.order))
	for _, command := range c.order {
		lines = append(lines, command.Detailed())
	}
	return strings.Join(lines, "\n")
}

// Names lists every name and alias that resolves to a command.
func (c *CommandGroup[User]) Names() []string {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *CommandGroup[User]) lookup(name string) (*Command, bool) {
	command, ok := c.commands[name]
	if !ok {
		command, ok = c.commands[strings.ToLower(name)]
	}
	return command, ok
}

func (c *CommandGroup[User]) resolve(args []string) (*Command, []string) {
	if len(args) == 0 {
		return nil, nil
	}

	// First check if the namespace is included.
	target := args[0]
	commandArguments := args[1:]
	if target == c.namespace {
		// You can't just address the namespace.
		if len(args) == 1 {
			return nil, nil
		}

		target = args[1]
		commandArguments = args[2:]
	}

	command, ok := c.lookup(target)
	if !ok {
		return nil, nil
	}

	return command, commandArguments
}

// Whether or not this command group can respond to this command.
func (c *CommandGroup[User]) CanHandle(args []string) bool {
	command, _ := c.resolve(args)
	return command != nil
}

var NIL = reflect.Value{}

func parseArg(type_ reflect.Type, argument string) (reflect.Value, error) {
	var value reflect.Value
	switch type_.Kind() {
	case reflect.Int:
		parsed, err := strconv.Atoi(argument)
		if err != nil {
			return NIL, usageError("expected number argument, got %q", argument)
		}
		value = reflect.ValueOf(parsed)
	case reflect.Float64:
		parsed, err := strconv.ParseFloat(argument, 64)
		if err != nil {
			return NIL, usageError("expected decimal argument, got %q", argument)
		}
		value = reflect.ValueOf(parsed)
	case reflect.Bool:
		switch strings.ToLower(argument) {
		case "yes", "1", "on", "true":
			value = reflect.ValueOf(true)
		case "no", "0", "off", "false":
			value = reflect.ValueOf(false)
		default:
			return NIL, usageError("expected boolean argument, got %q", argument)
		}
	case reflect.String:
		value = reflect.ValueOf(argument)
	default:
		return NIL, fmt.Errorf("could not parse argument")
	}

	// Named types such as game.PlayerID
	return value.Convert(type_), nil
}

func usage(command *Command) error {
	return usageError("usage: %s", command.String())
}

func (c *CommandGroup[User]) Handle(user User, args []string) error {
	command, commandArgs := c.resolve(args)
	if command == nil {
		return usageError("unknown command, send #help for a list")
	}

	callback := command.Callback
	callbackType := reflect.TypeOf(callback)
	callbackArgs := make([]reflect.Value, 0, callbackType.NumIn())
	userType := reflect.TypeOf(user)

	for i := 0; i < callbackType.NumIn(); i++ {
		argType := callbackType.In(i)

		if argType == userType {
			callbackArgs = append(callbackArgs, reflect.ValueOf(user))
			continue
		}

		var value reflect.Value
		switch argType.Kind() {
		case reflect.Slice:
			value = reflect.MakeSlice(argType, 0, len(commandArgs))
			for _, argument := range commandArgs {
				parsedValue, err := parseArg(argType.Elem(), argument)
				if err != nil {
					return err
				}
				value = reflect.Append(value, parsedValue)
			}
			commandArgs = nil
		case reflect.Pointer:
			if len(commandArgs) == 0 {
				value = reflect.Zero(argType)
				break
			}
			argument := commandArgs[0]
			commandArgs = commandArgs[1:]
			parsedValue, err := parseArg(argType.Elem(), argument)
			if err != nil {
				return err
			}

			value = reflect.New(argType.Elem())
			value.Elem().Set(parsedValue)
		default:
			if !isScalar(argType.Kind()) {
				return fmt.Errorf("operational fault while handling command")
			}

			if len(commandArgs) == 0 {
				return usage(command)
			}
			argument := commandArgs[0]
			commandArgs = commandArgs[1:]
			parsedValue, err := parseArg(argType, argument)
			if err != nil {
				return err
			}

			value = parsedValue
		}

		callbackArgs = append(callbackArgs, value)
	}

	if len(commandArgs) > 0 {
		return usage(command)
	}

	results := reflect.ValueOf(callback).Call(callbackArgs)
	if len(results) > 0 {
		result := results[0]
		if err, ok := result.Interface().(error); ok {
			return err
		}
	}

	return nil
}
