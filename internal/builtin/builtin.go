// Package builtin provides the capsules compiled into tw: the capsules
// command, the context preprocessor and the journal postprocessor.
package builtin

import (
	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
	"github.com/mokrunka/taskwarrior-capsules/internal/registry"
)

// MinVersion is the first release that ships the built-in capsules.
const MinVersion = "0.3.0"

// Registrations returns the built-in capsules.
func Registrations() []registry.Registration {
	return []registry.Registration{
		{
			Descriptor: descriptor(CapsulesName, capsulesDescription, capsule.RoleCommand),
			Factory:    func(env capsule.Env) (capsule.Capsule, error) { return NewCapsules(env), nil },
		},
		{
			Descriptor: descriptor(ContextName, contextDescription, capsule.RolePreprocessor),
			Factory:    func(env capsule.Env) (capsule.Capsule, error) { return NewContextFilter(env), nil },
		},
		{
			Descriptor: descriptor(JournalName, journalDescription, capsule.RolePostprocessor),
			Factory:    func(env capsule.Env) (capsule.Capsule, error) { return NewJournal(env), nil },
		},
	}
}

// Install registers every built-in capsule. Call it before loading
// installed capsules so built-in names take precedence.
func Install(reg *registry.Registry) error {
	for _, r := range Registrations() {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	return nil
}

func descriptor(name, description string, role capsule.Role) capsule.Descriptor {
	return capsule.Descriptor{
		Name:        name,
		Roles:       []capsule.Role{role},
		Description: description,
		MinVersion:  MinVersion,
		Source:      capsule.SourceBuiltin,
	}
}
