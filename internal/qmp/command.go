// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp

// Command is a QMP command with optional arguments.
type Command struct {
	Name      string
	Arguments any
}

// Commands used for managing the guest lifecycle. Use [Raw] for anything
// else.
var (
	// Capabilities leaves the negotiation mode. It is sent by the session
	// itself.
	Capabilities = Command{Name: "qmp_capabilities"}

	// Cont resumes the guest. A guest started with "-S" does not run any
	// code before it is sent.
	Cont = Command{Name: "cont"}

	// Stop pauses the guest.
	Stop = Command{Name: "stop"}

	// QueryStatus returns the run state of the guest. See [StatusInfo].
	QueryStatus = Command{Name: "query-status"}

	// SystemPowerdown requests an ACPI shutdown of the guest.
	SystemPowerdown = Command{Name: "system_powerdown"}

	// Quit terminates the hypervisor immediately.
	Quit = Command{Name: "quit"}
)

// Raw returns a [Command] with the given name and arguments. Arguments must
// be marshallable into a JSON object or be nil.
func Raw(name string, arguments any) Command {
	return Command{Name: name, Arguments: arguments}
}

// request is the wire format of a [Command].
type request struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
	ID        string `json:"id,omitempty"`
}

// StatusInfo is the return value of [QueryStatus].
type StatusInfo struct {
	Running    bool   `json:"running"`
	Singlestep bool   `json:"singlestep,omitempty"`
	Status     string `json:"status"`
}
