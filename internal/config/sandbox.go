package config

import (
	lua "github.com/yuin/gopher-lua"
)

// blockedGlobals are removed from every config VM
var blockedGlobals = []string{
	"os", "io", "debug",
	"require", "dofile", "loadfile", "load", "loadstring", "module",
	"getmetatable", "setmetatable", "rawget", "rawset", "rawequal",
	"getfenv", "setfenv", "collectgarbage", "newproxy",
}

// sandboxLuaVM configures a Lua VM to run in a restricted sandbox.
// The string, table and math libraries and the basic functions (type,
// tostring, tonumber, pairs, ipairs, next, ...) stay available.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a new Lua VM with sandboxing applied.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize:       256,
		RegistrySize:        1024 * 8,
		IncludeGoStackTrace: false,
	})
	sandboxLuaVM(L)
	return L
}
