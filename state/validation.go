package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/encodeous/rpld/protocol"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func InstanceConfigValidator(node *LocalCfg, inst *InstanceCfg) error {
	if mop := inst.GetMop(); mop != protocol.MopStoringNoMcast && mop != protocol.MopStoringWithMcast {
		return fmt.Errorf("instance %d: mode of operation %d is not supported, only storing mode", inst.InstanceId, mop)
	}
	if inst.Preference > 7 {
		return fmt.Errorf("instance %d: preference %d must be between 0 and 7", inst.InstanceId, inst.Preference)
	}
	if !inst.Root {
		return nil
	}
	if !inst.Prefix.IsValid() {
		return fmt.Errorf("instance %d: root must have a valid prefix", inst.InstanceId)
	}
	if !inst.Prefix.Addr().Is6() || inst.Prefix.Addr().Is4In6() {
		return fmt.Errorf("instance %d: prefix %s is not an IPv6 prefix", inst.InstanceId, inst.Prefix)
	}
	if inst.Prefix.Bits() < 1 || inst.Prefix.Bits() > 128 {
		return fmt.Errorf("instance %d: invalid prefix length %d", inst.InstanceId, inst.Prefix.Bits())
	}
	if inst.DodagId.IsValid() && !inst.DodagId.Is6() {
		return fmt.Errorf("instance %d: dodag id %s is not an IPv6 address", inst.InstanceId, inst.DodagId)
	}
	if !inst.DodagId.IsValid() && !node.Address.IsValid() {
		return fmt.Errorf("instance %d: dodag id is required when the node has no address", inst.InstanceId)
	}
	if err := inst.DodagConfig().Validate(); err != nil {
		return fmt.Errorf("instance %d: %w", inst.InstanceId, err)
	}
	return nil
}

func NodeConfigValidator(node *LocalCfg) error {
	err := NameValidator(node.Id)
	if err != nil {
		return err
	}
	if node.Address.IsValid() && !node.Address.Is6() {
		return fmt.Errorf("node.Address %s is not an IPv6 address", node.Address)
	}
	if node.Multicast.IsValid() && !node.Multicast.IsMulticast() {
		return fmt.Errorf("node.Multicast %s is not a multicast address", node.Multicast)
	}
	if node.LogPath != "" {
		if err := PathValidator(node.LogPath); err != nil {
			return fmt.Errorf("node.LogPath: %w", err)
		}
	}
	seen := make(map[uint8]struct{})
	roots := 0
	for i := range node.Instances {
		inst := &node.Instances[i]
		if _, ok := seen[inst.InstanceId]; ok {
			return fmt.Errorf("duplicate instance id %d: %w", inst.InstanceId, ErrInstanceConflict)
		}
		seen[inst.InstanceId] = struct{}{}
		if inst.Root {
			roots++
		}
		if err := InstanceConfigValidator(node, inst); err != nil {
			return err
		}
	}
	if roots > MaxInstances {
		return fmt.Errorf("%d root instances configured, at most %d may be active: %w", roots, MaxInstances, ErrResourceExhausted)
	}
	return nil
}
