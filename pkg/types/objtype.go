package types

import (
	"fmt"
	"strings"
)

// ObjectType enumerates the kernel object kinds the allocators can create.
// The numbering matches the kernel ABI object identifiers for ARM.
type ObjectType uint32

const (
	UntypedObject ObjectType = iota
	TCBObject
	EndpointObject
	NotificationObject
	CapTableObject
	HugePageObject
	PageUpperDirectoryObject
	PageGlobalDirectoryObject
	SmallPageObject
	LargePageObject
	PageTableObject
	PageDirectoryObject

	numObjectTypes
)

var objectTypeNames = [numObjectTypes]string{
	UntypedObject:             "Untyped",
	TCBObject:                 "TCB",
	EndpointObject:            "Endpoint",
	NotificationObject:        "Notification",
	CapTableObject:            "CapTable",
	HugePageObject:            "HugePage",
	PageUpperDirectoryObject:  "PageUpperDirectory",
	PageGlobalDirectoryObject: "PageGlobalDirectory",
	SmallPageObject:           "SmallPage",
	LargePageObject:           "LargePage",
	PageTableObject:           "PageTable",
	PageDirectoryObject:       "PageDirectory",
}

// String implements the Stringer interface for ObjectType.
func (t ObjectType) String() string {
	if t < numObjectTypes {
		return objectTypeNames[t]
	}
	return fmt.Sprintf("UNKNOWN_OBJECT_%d", uint32(t))
}

// Word returns the kernel ABI identifier of the object type.
func (t ObjectType) Word() Word { return Word(t) }

// IsFrame reports whether the type is a mappable page frame.
func (t ObjectType) IsFrame() bool {
	return t == SmallPageObject || t == LargePageObject || t == HugePageObject
}

// IsPagingStructure reports whether the type is an intermediate translation
// table (page table, directory, upper or global directory).
func (t ObjectType) IsPagingStructure() bool {
	switch t {
	case PageTableObject, PageDirectoryObject, PageUpperDirectoryObject, PageGlobalDirectoryObject:
		return true
	}
	return false
}

// ParseObjectType resolves a case-insensitive object type name, accepting
// an optional "Object" suffix ("SmallPage", "smallpageobject").
func ParseObjectType(name string) (ObjectType, error) {
	n := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "object")
	for i, s := range objectTypeNames {
		if strings.ToLower(s) == n {
			return ObjectType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown object type %q", name)
}

// ObjectTypes returns every catalogued object type in ABI order.
func ObjectTypes() []ObjectType {
	out := make([]ObjectType, 0, numObjectTypes)
	for t := ObjectType(0); t < numObjectTypes; t++ {
		out = append(out, t)
	}
	return out
}
