/*******************************************************************************
*
* Copyright 2024 SAP SE
*
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You should have received a copy of the License along with this
* program. If not, you may obtain a copy of the License at
*
*     http://www.apache.org/licenses/LICENSE-2.0
*
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
*
*******************************************************************************/

package core

import "github.com/sapcc/placement/internal/db"

// standardResourceClasses is the closed catalogue of resource class names
// that resolve to a fixed integer ID without ever touching storage. The
// list and the order are part of the engine's contract: once published, an
// ID must never be reassigned to a different name.
var standardResourceClasses = []string{
	"VCPU",
	"MEMORY_MB",
	"DISK_GB",
	"PCI_DEVICE",
	"SRIOV_NET_VF",
	"NUMA_SOCKET",
	"NUMA_CORE",
	"NUMA_THREAD",
	"NUMA_MEMORY_MB",
	"IPV4_ADDRESS",
	"VGPU",
	"VGPU_DISPLAY_HEAD",
	"NET_BW_EGR_KILOBIT_PER_SEC",
	"NET_BW_IGR_KILOBIT_PER_SEC",
}

// standardTraits is the closed catalogue of trait names that resolve to a
// fixed integer ID without ever touching storage.
var standardTraits = []string{
	"MISC_SHARES_VIA_AGGREGATE",
	"HW_CPU_X86_AVX2",
	"HW_CPU_HYPERTHREADING",
	"HW_NIC_OFFLOAD_GENEVE",
	"HW_NIC_OFFLOAD_SRIOV",
	"STORAGE_DISK_SSD",
	"COMPUTE_VOLUME_MULTI_ATTACH",
	"COMPUTE_NODE",
}

// SharingTraitName is the well-known trait that marks a provider as a
// sharing provider: its inventory becomes usable by any non-sharing
// provider that shares an aggregate with it.
const SharingTraitName = "MISC_SHARES_VIA_AGGREGATE"

func indexOf(haystack []string, needle string) (int, bool) {
	for i, s := range haystack {
		if s == needle {
			return i, true
		}
	}
	return -1, false
}

// resourceClassIDFromStandard returns the fixed ID for a standard resource
// class name, or false if the name is not standard.
func resourceClassIDFromStandard(name string) (db.ResourceClassID, bool) {
	idx, ok := indexOf(standardResourceClasses, name)
	if !ok {
		return 0, false
	}
	return db.ResourceClassID(idx + 1), true
}

// resourceClassNameFromStandard returns the standard name for a fixed ID,
// or false if the ID does not belong to the standard catalogue.
func resourceClassNameFromStandard(id db.ResourceClassID) (string, bool) {
	idx := int(id) - 1
	if idx < 0 || idx >= len(standardResourceClasses) {
		return "", false
	}
	return standardResourceClasses[idx], true
}

func traitIDFromStandard(name string) (db.TraitID, bool) {
	idx, ok := indexOf(standardTraits, name)
	if !ok {
		return 0, false
	}
	return db.TraitID(idx + 1), true
}

func traitNameFromStandard(id db.TraitID) (string, bool) {
	idx := int(id) - 1
	if idx < 0 || idx >= len(standardTraits) {
		return "", false
	}
	return standardTraits[idx], true
}

// customIDOffset is the first ID available to a custom resource class or
// trait. Standard IDs occupy [1, len(standard)], well below this offset;
// the gap is enforced by starting the `resource_classes_id_seq` and
// `traits_id_seq` sequences here (see migrations.go), so the two ID spaces
// never collide even though both are persisted as plain BIGSERIALs.
const customIDOffset = 10000
