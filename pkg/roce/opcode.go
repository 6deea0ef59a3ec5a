package roce

import "fmt"

// Opcode is the BTH operation code. The upper three bits select the transport
// service (RC, UC, RD, UD, CNP) and the lower five the operation.
type Opcode uint8

// Opcodes with a name. Only CNP, RC Send Only and RC RDMA Write Only select a
// follow-on layer in the default dispatch table.
const (
	OpcodeRCSendFirst             Opcode = 0
	OpcodeRCSendMiddle            Opcode = 1
	OpcodeRCSendLast              Opcode = 2
	OpcodeRCSendLastImmediate     Opcode = 3
	OpcodeRCSendOnly              Opcode = 4
	OpcodeRCSendOnlyImmediate     Opcode = 5
	OpcodeRCRDMAWriteFirst        Opcode = 6
	OpcodeRCRDMAWriteMiddle       Opcode = 7
	OpcodeRCRDMAWriteLast         Opcode = 8
	OpcodeRCRDMAWriteLastImm      Opcode = 9
	OpcodeRCRDMAWriteOnly         Opcode = 10
	OpcodeRCRDMAWriteOnlyImm      Opcode = 11
	OpcodeRCRDMAReadRequest       Opcode = 12
	OpcodeRCRDMAReadResponseFirst Opcode = 13
	OpcodeRCRDMAReadResponseMid   Opcode = 14
	OpcodeRCRDMAReadResponseLast  Opcode = 15
	OpcodeRCRDMAReadResponseOnly  Opcode = 16
	OpcodeRCAcknowledge           Opcode = 17
	OpcodeUDSendOnly              Opcode = 100
	OpcodeUDSendOnlyImmediate     Opcode = 101
	OpcodeCNP                     Opcode = 129
)

var opcodeNames = map[Opcode]string{
	OpcodeRCSendFirst:             "RC_Send_First",
	OpcodeRCSendMiddle:            "RC_Send_Middle",
	OpcodeRCSendLast:              "RC_Send_Last",
	OpcodeRCSendLastImmediate:     "RC_Send_Last_Immediate",
	OpcodeRCSendOnly:              "RC_Send_Only",
	OpcodeRCSendOnlyImmediate:     "RC_Send_Only_Immediate",
	OpcodeRCRDMAWriteFirst:        "RC_RDMA_Write_First",
	OpcodeRCRDMAWriteMiddle:       "RC_RDMA_Write_Middle",
	OpcodeRCRDMAWriteLast:         "RC_RDMA_Write_Last",
	OpcodeRCRDMAWriteLastImm:      "RC_RDMA_Write_Last_Immediate",
	OpcodeRCRDMAWriteOnly:         "RC_RDMA_Write_Only",
	OpcodeRCRDMAWriteOnlyImm:      "RC_RDMA_Write_Only_Immediate",
	OpcodeRCRDMAReadRequest:       "RC_RDMA_Read_Request",
	OpcodeRCRDMAReadResponseFirst: "RC_RDMA_Read_Response_First",
	OpcodeRCRDMAReadResponseMid:   "RC_RDMA_Read_Response_Middle",
	OpcodeRCRDMAReadResponseLast:  "RC_RDMA_Read_Response_Last",
	OpcodeRCRDMAReadResponseOnly:  "RC_RDMA_Read_Response_Only",
	OpcodeRCAcknowledge:           "RC_Acknowledge",
	OpcodeUDSendOnly:              "UD_Send_Only",
	OpcodeUDSendOnlyImmediate:     "UD_Send_Only_Immediate",
	OpcodeCNP:                     "RoCEv2_CNP",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", uint8(o))
}

// ParseOpcode resolves an opcode by the name String returns.
func ParseOpcode(name string) (Opcode, bool) {
	for op, n := range opcodeNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}
