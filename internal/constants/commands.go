package constants

// CommandAutoDelete задаёт или снимает правило автоудаления для канала.
const CommandAutoDelete = "autodelete"

// CommandAutoDeleteStatus показывает состояние sweeper и правило текущего канала.
const CommandAutoDeleteStatus = "autodeletestatus"

// CommandClear удаляет последние N сообщений канала.
const CommandClear = "clear"

// CommandClearOld удаляет N самых старых незакреплённых сообщений из последних 1000.
const CommandClearOld = "clearold"

// AutoDeleteOffArg отключает правило: "autodelete off".
const AutoDeleteOffArg = "off"

// ClearMaxCount - максимальное число сообщений для clear и clearold.
const ClearMaxCount = 100

// ClearOldScanLimit - сколько последних сообщений просматривает clearold.
const ClearOldScanLimit = 1000
