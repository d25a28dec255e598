/*
The package cb implements everything that is necessary for turning the cell broadcast PDUs received
from a GSM/UMTS modem into complete messages. This implementation is based on:
  [CBS]  3GPP TS 23.041 V16.0.0 (2020-07), Technical realization of Cell Broadcast Service
  [DCS]  3GPP TS 23.038 V16.0.0 (2020-07), Alphabets and language-specific information
  [WEA]  ATIS-0700041 (2017), Device-based geo-fencing for Wireless Emergency Alerts

The most relevant chapters in [CBS] are 9.3 (Parameters) and 9.4 (Message format on the radio interface).

Abbreviations:
PDU: Protocol Data Unit
DCS: Data Coding Scheme
WAC: Warning Area Coordinates
CMAS: Commercial Mobile Alert System

Restrictions:
ETWS primary notifications and compressed text are not supported.

*/
package cb
