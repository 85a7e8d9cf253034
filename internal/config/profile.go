package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/tao-j/helvetic/internal/protocol"
)

const DefaultDeviceName = "helvetic"

// Profile is the content of the key=value profile file.
type Profile struct {
	DeviceName string
	User       protocol.Profile
}

func DefaultProfile() Profile {
	return Profile{DeviceName: DefaultDeviceName, User: protocol.DefaultProfile()}
}

// LoadProfile reads the profile file at path. A missing file yields the
// defaults.
func LoadProfile(path string) (Profile, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("profile file not found, using defaults", "path", path)
		return DefaultProfile(), nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("open profile %q: %w", path, err)
	}
	defer f.Close()

	p, err := ParseProfile(f)
	if err != nil {
		return Profile{}, fmt.Errorf("profile %q: %w", path, err)
	}
	return p, nil
}

// ParseProfile reads key=value lines. Values may be shell-quoted; '#'
// starts a comment.
func ParseProfile(r io.Reader) (Profile, error) {
	p := DefaultProfile()

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		tokens, err := shlex.Split(sc.Text())
		if err != nil {
			return Profile{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(tokens) == 0 {
			continue
		}
		key, value, ok := strings.Cut(strings.Join(tokens, " "), "=")
		if !ok {
			return Profile{}, fmt.Errorf("line %d: missing '='", lineNo)
		}
		if err := p.set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return Profile{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p *Profile) set(key, value string) error {
	switch key {
	case "ssid", "password":
		// network setup is handled by the host
	case "deviceName":
		if value != "" {
			p.DeviceName = value
		}
	case "userName":
		if len(value) > protocol.MaxUserNameLen {
			return fmt.Errorf("invalid userName %q: longer than %d bytes", value, protocol.MaxUserNameLen)
		}
		p.User.Name = value
	case "gender":
		if strings.HasPrefix(strings.ToLower(value), "f") {
			p.User.Gender = protocol.Female
		} else {
			p.User.Gender = protocol.Male
		}
	case "age":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid age %q: %w", value, err)
		}
		p.User.Age = uint32(n)
	case "height":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid height %q: %w", value, err)
		}
		p.User.Height = uint32(n)
	default:
		slog.Warn("unknown profile key ignored", "key", key)
	}
	return nil
}
